package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

// maxAssetBytes caps a single downloaded asset (background, signature, font).
const maxAssetBytes = 32 << 20

// Fetcher retrieves raw asset bytes by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageLoader resolves an image reference into a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher downloads assets over HTTP(S) and understands base64 data URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// WithClient swaps the HTTP client, e.g. for a mocked transport.
func (f *HTTPFetcher) WithClient(c *http.Client) *HTTPFetcher {
	f.client = c
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty asset url")
	}
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxAssetBytes {
		return nil, fmt.Errorf("fetch %s: asset larger than %d bytes", url, maxAssetBytes)
	}
	return body, nil
}

func decodeDataURL(u string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(payload), nil
	}
	return base64.StdEncoding.DecodeString(payload)
}

// FetchLoader decodes images obtained from a Fetcher.
type FetchLoader struct{ f Fetcher }

func NewFetchLoader(f Fetcher) *FetchLoader { return &FetchLoader{f: f} }

func (l *FetchLoader) Load(ctx context.Context, url string) (image.Image, error) {
	b, err := l.f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return img, nil
}
