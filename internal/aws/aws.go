package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	// Only use profile if we're not in a K8s environment
	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(getProfile()))
	}

	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

// Simple check to see if we're running in K8s
func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

func GetCallerIdentity(ctx context.Context, cfg aws.Config) (*sts.GetCallerIdentityOutput, error) {
	stsClient := sts.NewFromConfig(cfg)
	return stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}

// NewS3Client loads credentials, confirms them with STS and returns an S3
// client for reading raw allocation archives.
func NewS3Client(ctx context.Context, region string, l *zap.Logger) (*s3.Client, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	identity, err := GetCallerIdentity(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to verify AWS credentials in region %s", cfg.Region)
	}
	l.Sugar().Infow("Using AWS identity",
		"account", aws.ToString(identity.Account),
		"arn", aws.ToString(identity.Arn),
		"region", cfg.Region,
	)

	return s3.NewFromConfig(cfg), nil
}
