package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

// S3Config configures an S3-compatible bucket. Backblaze B2 needs Endpoint
// (https://s3.<region>.backblazeb2.com) and path-style addressing.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	Retry     resilience.RetryConfig
}

// S3Store implements Store on an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	retry  resilience.RetryConfig
	logger *zap.Logger
}

// NewS3 loads AWS defaults and overrides them with cfg.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("objstore: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "objstore: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		applyS3Options(o, cfg)
	})
	return newS3Store(client, cfg, logger), nil
}

func applyS3Options(o *s3.Options, cfg S3Config) {
	if cfg.Endpoint != "" {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	o.UsePathStyle = cfg.PathStyle
	// B2 rejects the newer default integrity checksums.
	o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	// Retries are driven by resilience.Retry.
	o.RetryMaxAttempts = 1
}

func newS3Store(client *s3.Client, cfg S3Config, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.L()
	}
	retry := cfg.Retry
	retry.Retryable = isRetryableS3
	return &S3Store{client: client, bucket: cfg.Bucket, retry: retry, logger: logger}
}

// Put uploads one object.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	cfg := s.retry
	cfg.OnRetry = resilience.LogRetries(s.logger, "objstore put", zap.String("key", key))
	err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		return err
	})
	return eris.Wrapf(err, "objstore: put %s", key)
}

// Get downloads one object.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	cfg := s.retry
	cfg.OnRetry = resilience.LogRetries(s.logger, "objstore get", zap.String("key", key))
	data, err := resilience.RetryVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close() //nolint:errcheck
		return io.ReadAll(out.Body)
	})
	if isNotFound(err) {
		return nil, eris.Wrapf(ErrNotFound, "objstore: get %s", key)
	}
	return data, eris.Wrapf(err, "objstore: get %s", key)
}

// Exists issues a HEAD request for key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "objstore: head %s", key)
}

// List pages through ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "objstore: list %s", prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

type httpStatuser interface {
	HTTPStatusCode() int
}

func statusOf(err error) int {
	var hs httpStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatusCode()
	}
	return 0
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return statusOf(err) == 404
}

func isRetryableS3(err error) bool {
	if code := statusOf(err); code != 0 {
		return resilience.IsTransientHTTPStatus(code)
	}
	return resilience.IsTransient(err)
}
