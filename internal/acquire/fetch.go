package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cyclopcam/www"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// HTTPFetcher performs a plain GET with no headers, retries or timeout.
type HTTPFetcher struct{}

func (HTTPFetcher) Fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := www.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.Close()
}

// ObjectStorageConfig holds connection details for an S3 compatible store
type ObjectStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectFetcher downloads s3://bucket/key URLs from an S3 compatible store.
type ObjectFetcher struct {
	client *minio.Client
}

func NewObjectFetcher(cfg ObjectStorageConfig) (*ObjectFetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &ObjectFetcher{client: client}, nil
}

func (o *ObjectFetcher) Fetch(ctx context.Context, rawURL, dst string) error {
	bucket, key, err := ParseObjectURL(rawURL)
	if err != nil {
		return err
	}
	return o.client.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{})
}

// ParseObjectURL splits s3://bucket/path/to/key into bucket and key
func ParseObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("object URL '%s' must look like s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}
