package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultURLExpiry = time.Hour

// MinioResolver signs short-lived GET URLs for objects in a single bucket.
type MinioResolver struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinioResolver(cfg Config) (*MinioResolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket must be set for type %q", cfg.Type)
	}
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &MinioResolver{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
	}, nil
}

func (r *MinioResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	object := strings.TrimPrefix(ref, "/")
	if object == "" {
		return "", fmt.Errorf("%w: empty object key", ErrUnresolvable)
	}
	u, err := r.client.PresignedGetObject(ctx, r.bucket, object, r.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", r.bucket, object, err)
	}
	return u.String(), nil
}
