// Package s3 provides an object store on S3-compatible storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// ErrBucketRequired is returned by New when no bucket is configured.
var ErrBucketRequired = errors.New("s3 bucket is required")

// Config selects the bucket and how to reach it. Empty credentials fall back
// to the default AWS credential chain.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// ObjectStore implements outbound.ObjectStore against one bucket.
type ObjectStore struct {
	bucket string
	client *s3.Client
	logger *slog.Logger
}

// New loads the AWS configuration and builds a client for cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*ObjectStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &ObjectStore{
		bucket: bucket,
		client: client,
		logger: logger.With("component", "s3-object-store", "bucket", bucket),
	}, nil
}

// ListObjects implements outbound.ObjectStore, following continuation
// tokens until the listing is exhausted.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix string) ([]outbound.ObjectRef, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var refs []outbound.ObjectRef
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			ref := outbound.ObjectRef{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				ref.Updated = obj.LastModified.UTC()
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// DeleteObject implements outbound.ObjectStore. S3 reports success for
// absent keys; a NoSuchKey from a compatible server is treated the same.
func (s *ObjectStore) DeleteObject(ctx context.Context, ref outbound.ObjectRef) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", ref.Key, err)
	}
	s.logger.Debug("object deleted", "key", ref.Key)
	return nil
}

// PutObject implements outbound.ObjectWriter.
func (s *ObjectStore) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Health checks that the bucket is reachable.
func (s *ObjectStore) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var (
	_ outbound.ObjectStore  = (*ObjectStore)(nil)
	_ outbound.ObjectWriter = (*ObjectStore)(nil)
)
