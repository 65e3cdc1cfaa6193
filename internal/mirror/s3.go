// Package mirror stores prebuilt cache files in an S3-compatible bucket so
// machines can share one ingestion run.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// Config selects the bucket. Credentials come from the default AWS chain.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	PathStyle bool
}

// S3Mirror reads and writes cache files under Prefix in Bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3Mirror.
func New(ctx context.Context, cfg Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, apperrors.Newf("mirror.new", apperrors.ErrConfiguration, "s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, apperrors.New("mirror.new", apperrors.ErrConfiguration, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Mirror{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Key returns the object key for a cache file name such as "go_annotations/go_human.db".
func (m *S3Mirror) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Fetch downloads name to dst. It reports false, with no error, when the
// object does not exist. dst is written atomically.
func (m *S3Mirror) Fetch(ctx context.Context, name, dst string) (bool, error) {
	key := m.Key(name)
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &m.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return false, nil
		}
		return false, apperrors.New("mirror.fetch", apperrors.ErrNetwork, fmt.Errorf("get s3://%s/%s: %w", m.bucket, key, err))
	}
	defer func() { _ = out.Body.Close() }()

	if err := writeAtomic(dst, out.Body); err != nil {
		return false, apperrors.New("mirror.fetch", apperrors.ErrNetwork, err)
	}
	return true, nil
}

// Publish uploads src as name, replacing any existing object.
func (m *S3Mirror) Publish(ctx context.Context, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return apperrors.New("mirror.publish", apperrors.ErrConfiguration, err)
	}
	defer func() { _ = f.Close() }()

	key := m.Key(name)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return apperrors.New("mirror.publish", apperrors.ErrNetwork, fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err))
	}
	return nil
}

func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op after rename
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
