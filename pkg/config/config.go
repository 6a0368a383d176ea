package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for allocation server configuration
const (
	EnvAllocConfigFile      = "ALLOC_CONFIG_FILE"
	EnvAllocPort            = "ALLOC_PORT"
	EnvAllocSourceType      = "ALLOC_SOURCE_TYPE"
	EnvAllocRawInputDir     = "ALLOC_RAW_INPUT_DIR"
	EnvAllocS3Bucket        = "ALLOC_S3_BUCKET"
	EnvAllocS3Prefix        = "ALLOC_S3_PREFIX"
	EnvAllocAWSRegion       = "ALLOC_AWS_REGION"
	EnvAllocRefreshInterval = "ALLOC_REFRESH_INTERVAL"
	EnvAllocLedgerType      = "ALLOC_LEDGER_TYPE"
	EnvAllocBadgerPath      = "ALLOC_BADGER_PATH"
	EnvAllocRedisAddress    = "ALLOC_REDIS_ADDRESS"
	EnvAllocRedisPassword   = "ALLOC_REDIS_PASSWORD"
	EnvAllocRedisDB         = "ALLOC_REDIS_DB"
	EnvAllocRedisKeyPrefix  = "ALLOC_REDIS_KEY_PREFIX"
	EnvAllocRejectRootDrift = "ALLOC_REJECT_ROOT_DRIFT"
	EnvAllocAdminJWTSecret  = "ALLOC_ADMIN_JWT_SECRET"
	EnvAllocRateLimit       = "ALLOC_RATE_LIMIT"
	EnvAllocRateBurst       = "ALLOC_RATE_BURST"
	EnvAllocDebug           = "ALLOC_DEBUG"
	EnvAllocVerbose         = "ALLOC_VERBOSE"
)

type SourceType string

func (s SourceType) String() string {
	return string(s)
}

const (
	SourceTypeLocal SourceType = "local"
	SourceTypeS3    SourceType = "s3"
)

type LedgerType string

func (l LedgerType) String() string {
	return string(l)
}

const (
	LedgerTypeNone   LedgerType = "none"
	LedgerTypeMemory LedgerType = "memory"
	LedgerTypeBadger LedgerType = "badger"
	LedgerTypeRedis  LedgerType = "redis"
)

// MinAdminSecretLength is the shortest accepted HS256 secret, in bytes.
const MinAdminSecretLength = 32

// minRefreshInterval guards against hammering the raw input source.
const minRefreshInterval = 10 * time.Second

type S3SourceConfig struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
	Region string `json:"region" yaml:"region"`
}

type RedisLedgerConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// ServerConfig contains the configuration for the allocation server
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`

	// Raw input
	SourceType  SourceType     `json:"sourceType" yaml:"sourceType"`
	RawInputDir string         `json:"rawInputDir" yaml:"rawInputDir"`
	S3          S3SourceConfig `json:"s3" yaml:"s3"`

	// RefreshInterval of zero disables periodic refreshes.
	RefreshInterval time.Duration `json:"refreshInterval" yaml:"refreshInterval"`

	// Root ledger
	LedgerType      LedgerType        `json:"ledgerType" yaml:"ledgerType"`
	BadgerPath      string            `json:"badgerPath" yaml:"badgerPath"`
	Redis           RedisLedgerConfig `json:"redis" yaml:"redis"`
	RejectRootDrift bool              `json:"rejectRootDrift" yaml:"rejectRootDrift"`

	// AdminJWTSecret enables POST /admin/refresh when set.
	AdminJWTSecret string `json:"-" yaml:"adminJwtSecret"`

	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit float64 `json:"rateLimit" yaml:"rateLimit"`
	RateBurst int     `json:"rateBurst" yaml:"rateBurst"`

	Debug   bool `json:"debug" yaml:"debug"`
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultServerConfig returns the configuration used when nothing is set.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:        8080,
		SourceType:  SourceTypeLocal,
		RawInputDir: "raw_input",
		LedgerType:  LedgerTypeNone,
		RateLimit:   0,
		RateBurst:   50,
	}
}

// LoadConfigFile reads a YAML config file on top of DefaultServerConfig.
func LoadConfigFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultServerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the allocation server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	switch c.SourceType {
	case SourceTypeLocal:
		if c.RawInputDir == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("rawInputDir"), "rawInputDir is required for the local source"))
		}
	case SourceTypeS3:
		if c.S3.Bucket == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("s3", "bucket"), "bucket is required for the s3 source"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("sourceType"), c.SourceType,
			[]string{SourceTypeLocal.String(), SourceTypeS3.String()}))
	}

	if c.RefreshInterval < 0 || (c.RefreshInterval > 0 && c.RefreshInterval < minRefreshInterval) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("refreshInterval"), c.RefreshInterval.String(),
			fmt.Sprintf("must be 0 (disabled) or at least %s", minRefreshInterval)))
	}

	switch c.LedgerType {
	case LedgerTypeNone, LedgerTypeMemory:
	case LedgerTypeBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badgerPath is required for the badger ledger"))
		}
	case LedgerTypeRedis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "address is required for the redis ledger"))
		}
		if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "db must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("ledgerType"), c.LedgerType,
			[]string{LedgerTypeNone.String(), LedgerTypeMemory.String(), LedgerTypeBadger.String(), LedgerTypeRedis.String()}))
	}

	if c.RejectRootDrift && (c.LedgerType == LedgerTypeNone || c.LedgerType == "") {
		allErrors = append(allErrors, field.Forbidden(field.NewPath("rejectRootDrift"), "requires a root ledger"))
	}

	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < MinAdminSecretLength {
		allErrors = append(allErrors, field.Invalid(field.NewPath("adminJwtSecret"), "<redacted>",
			fmt.Sprintf("must be at least %d bytes", MinAdminSecretLength)))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
