package ingest

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// maxArchiveBytes bounds how much of a single object is buffered.
const maxArchiveBytes = 512 << 20

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads raw_<round>.zip objects stored under a bucket prefix.
type S3Source struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

func NewS3Source(client S3API, bucket, prefix string, logger *zap.Logger) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3Source) Name() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3Source) Load(ctx context.Context) ([]*types.RoundAmounts, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	set := newRoundSet()
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list objects in %s", s.Name())
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			round, ok := RoundFromFileName(path.Base(key))
			if !ok {
				continue
			}

			entries, err := s.readObject(ctx, key)
			if errors.Is(err, ErrEmptyArchive) {
				s.logger.Sugar().Warnw("Skipping empty archive", "key", key, "round", round)
				continue
			}
			if err != nil {
				return nil, err
			}

			if err := set.add(round, key, entries); err != nil {
				return nil, err
			}
			s.logger.Sugar().Debugw("Loaded round input", "key", key, "round", round, "entries", len(entries))
		}
	}

	return set.sorted(), nil
}

func (s *S3Source) readObject(ctx context.Context, key string) ([]types.RawAllocation, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get object %s", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxArchiveBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %s", key)
	}
	if len(data) > maxArchiveBytes {
		return nil, errors.Errorf("object %s exceeds %d bytes", key, maxArchiveBytes)
	}

	entries, err := ReadArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, ErrEmptyArchive) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "failed to read archive %s", key)
	}
	return entries, nil
}
