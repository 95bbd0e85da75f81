package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore writes artifacts to a Cloud Storage bucket and signs V4 GET URLs.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	ttl    time.Duration
}

func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string, ttl time.Duration) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket not set")
	}
	opts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), prefix: prefix, ttl: ttl}, nil
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.bucket.Object(g.prefix + key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %q: %w", key, err)
	}
	return nil
}

func (g *GCSStore) SignedURL(_ context.Context, key string) (string, error) {
	u, err := g.bucket.SignedURL(g.prefix+key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs: sign %q: %w", key, err)
	}
	return u, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(g.prefix + key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %q: %w", key, err)
	}
	return nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
