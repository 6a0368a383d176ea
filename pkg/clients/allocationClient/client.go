package allocationClient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

const defaultTimeout = 30 * time.Second

// ClientConfig holds the configuration for the allocation API client
type ClientConfig struct {
	BaseURL string
	Logger  *zap.Logger

	// HTTPClient is optional; a client with a 30s timeout is used otherwise.
	HTTPClient *http.Client

	// AdminToken is sent as a bearer token to admin endpoints.
	AdminToken string
}

// Client is a typed client for the allocation query API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	adminToken string
	logger     *zap.Logger
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("allocation api returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new allocation API client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https, got %q", baseURL.Scheme)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		adminToken: config.AdminToken,
		logger:     config.Logger,
	}, nil
}

// GetCalldata fetches the claim calldata for address. Round 0 selects the latest round.
func (c *Client) GetCalldata(ctx context.Context, address string, round uint8) (*types.CalldataProof, error) {
	var proof types.CalldataProof
	if err := c.get(ctx, "/get_calldata", addressQuery(address, round), &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// GetAllocationAmount fetches the cumulative amount for address as a hex string.
func (c *Client) GetAllocationAmount(ctx context.Context, address string, round uint8) (string, error) {
	var amount string
	if err := c.get(ctx, "/get_allocation_amount", addressQuery(address, round), &amount); err != nil {
		return "", err
	}
	return amount, nil
}

// GetRoot fetches the hex root of round.
func (c *Client) GetRoot(ctx context.Context, round uint8) (string, error) {
	var root string
	if err := c.get(ctx, "/get_root", roundQuery(round), &root); err != nil {
		return "", err
	}
	return root, nil
}

// GetRounds lists every round the server has loaded.
func (c *Client) GetRounds(ctx context.Context) ([]types.RoundSummary, error) {
	var rounds []types.RoundSummary
	if err := c.get(ctx, "/get_rounds", nil, &rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

// TriggerRefresh asks the server to reload its raw input.
func (c *Client) TriggerRefresh(ctx context.Context) (*types.RefreshResult, error) {
	if c.adminToken == "" {
		return nil, fmt.Errorf("admin token is required to trigger a refresh")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/admin/refresh", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)

	var result types.RefreshResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Triggered snapshot refresh",
		"snapshotId", result.SnapshotID,
		"rounds", result.Rounds,
		"latestRound", result.LatestRound,
	)
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.logger.Sugar().Debugw("Sending request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var errResp types.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
		c.logger.Sugar().Debugw("Request returned error", "path", req.URL.Path, "status", resp.StatusCode, "error", apiErr.Message)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func addressQuery(address string, round uint8) url.Values {
	q := roundQuery(round)
	if q == nil {
		q = url.Values{}
	}
	q.Set("address", address)
	return q
}

func roundQuery(round uint8) url.Values {
	if round == 0 {
		return nil
	}
	return url.Values{"round": []string{strconv.Itoa(int(round))}}
}
