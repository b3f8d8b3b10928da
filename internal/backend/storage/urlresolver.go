package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrUnresolvable marks a storage reference that cannot be turned into a fetchable URL.
var ErrUnresolvable = errors.New("storage reference cannot be resolved to a URL")

// URLResolver materializes opaque storage references into URLs a browser can load.
type URLResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

type Config struct {
	Type      string        `yaml:"type"`
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"accessKey"`
	SecretKey string        `yaml:"secretKey"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	UseSSL    bool          `yaml:"useSSL"`
	URLExpiry time.Duration `yaml:"urlExpiry"`
}

func NewURLResolver(cfg Config) (URLResolver, error) {
	switch cfg.Type {
	case "", "passthrough":
		return PassthroughResolver{}, nil
	case "minio", "s3":
		return NewMinioResolver(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// PassthroughResolver accepts references that already are absolute http(s) URLs.
type PassthroughResolver struct{}

func (PassthroughResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnresolvable, ref)
	}
	return ref, nil
}
