// Package storage keeps rendered certificate images and hands out expiring
// links to them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const ContentTypePNG = "image/png"

// ErrNotFound is returned by backends that can tell a key is absent.
var ErrNotFound = errors.New("artifact not found")

// Store persists artifacts and produces opaque, expiring read URLs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Options selects and configures a backend.
type Options struct {
	// URL is s3://bucket[/prefix], gcs://bucket[/prefix] or mem://
	URL             string
	Region          string
	URLTTL          time.Duration
	CredentialsFile string
}

// Open builds the backend named by opts.URL.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (Store, error) {
	scheme, bucket, prefix, err := parseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = 7 * 24 * time.Hour
	}
	switch scheme {
	case "mem":
		log.Warn().Msg("artifact store is in-memory; artifacts do not survive restarts")
		return NewMemoryStore(opts.URLTTL), nil
	case "s3":
		return NewS3Store(ctx, bucket, prefix, opts.Region, opts.URLTTL)
	case "gcs":
		return NewGCSStore(ctx, bucket, prefix, opts.CredentialsFile, opts.URLTTL)
	}
	return nil, fmt.Errorf("storage: unsupported scheme %q", scheme)
}

func parseURL(raw string) (scheme, bucket, prefix string, err error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", "", "", fmt.Errorf("storage: expected <scheme>://..., got %q", raw)
	}
	scheme = strings.ToLower(scheme)
	if scheme == "mem" {
		return scheme, "", "", nil
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", "", fmt.Errorf("storage: bucket not set in %q", raw)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return scheme, bucket, prefix, nil
}

// CertificateKey names a new certificate image: certificates/<unix millis>-<random>.png
func CertificateKey(now time.Time) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("certificates/%d-%s.png", now.UnixMilli(), r)
}
