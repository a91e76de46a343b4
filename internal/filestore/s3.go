package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	commons3 "github.com/xxxsen/common/s3"
)

type s3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
	// PublicBase is the URL the bucket (or a CDN in front of it) is served
	// from, e.g. https://cdn.example.com/images.
	PublicBase string `json:"public_base"`
}

func (c *s3Config) check() error {
	var missing []string
	for name, v := range map[string]string{
		"endpoint":   c.Endpoint,
		"bucket":     c.Bucket,
		"secret_id":  c.SecretID,
		"secret_key": c.SecretKey,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 store missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type s3Store struct {
	client     *commons3.S3Client
	prefix     string
	publicBase string
}

func init() {
	Register("s3", newS3Store)
}

func newS3Store(args interface{}) (Store, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := commons3.New(
		commons3.WithEndpoint(cfg.Endpoint),
		commons3.WithSecret(cfg.SecretID, cfg.SecretKey),
		commons3.WithBucket(cfg.Bucket),
		commons3.WithRegion(cfg.Region),
		commons3.WithSSL(cfg.UseSSL),
	)
	if err != nil {
		return nil, err
	}
	return &s3Store{
		client:     client,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
	}, nil
}

func (s *s3Store) Type() string {
	return "s3"
}

func (s *s3Store) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.client.Upload(ctx, s.objectKey(key), r, size); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Open is not available; images in s3 are served through URL.
func (s *s3Store) Open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	return nil, ErrOpenUnsupported
}

func (s *s3Store) URL(key string) string {
	if s.publicBase == "" || checkKey(key) != nil {
		return ""
	}
	return s.publicBase + "/" + s.objectKey(key)
}

func (s *s3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
