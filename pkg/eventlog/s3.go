package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/logflow/procflow/pkg/errors"
)

// S3Config configures access to S3 or an S3-compatible store.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for MinIO, LocalStack)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// IsS3URI reports whether path is an s3://bucket/key location.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", errors.New(errors.CodeInvalidFormat, "not an s3 uri").WithContext("uri", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New(errors.CodeInvalidFormat, "s3 uri needs a bucket and a key").WithContext("uri", uri)
	}
	return bucket, key, nil
}

// objectGetter is the part of the S3 API the fetcher uses.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher opens objects by s3:// URI.
type S3Fetcher struct {
	cfg    S3Config
	client objectGetter
}

// NewS3Fetcher builds an S3 client from the default AWS chain, overridden
// by cfg.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Fetcher{cfg: cfg, client: client}, nil
}

// Open streams the object at uri. The caller closes the reader.
func (f *S3Fetcher) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	if f.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.DownloadTimeout)
		defer cancel()
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceFetch, "failed to get object").WithContext("uri", uri)
	}

	// The body must outlive the timeout context, so buffer it here.
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceFetch, "failed to read object").WithContext("uri", uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
