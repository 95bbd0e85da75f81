package storage

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/certify/internal/logger"
)

func TestParseURL(t *testing.T) {
	scheme, bucket, prefix, err := parseURL("s3://certs/prod/")
	require.NoError(t, err)
	assert.Equal(t, "s3", scheme)
	assert.Equal(t, "certs", bucket)
	assert.Equal(t, "prod/", prefix)

	scheme, bucket, prefix, err = parseURL("gcs://certs")
	require.NoError(t, err)
	assert.Equal(t, "gcs", scheme)
	assert.Equal(t, "certs", bucket)
	assert.Empty(t, prefix)

	scheme, _, _, err = parseURL("mem://")
	require.NoError(t, err)
	assert.Equal(t, "mem", scheme)

	_, _, _, err = parseURL("s3://")
	assert.Error(t, err)
	_, _, _, err = parseURL("/tmp/certs")
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), Options{URL: "ftp://bucket"}, logger.Nop())
	assert.Error(t, err)
}

func TestCertificateKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	k1 := CertificateKey(now)
	k2 := CertificateKey(now)
	assert.Regexp(t, `^certificates/1700000000123-[0-9a-f]{12}\.png$`, k1)
	assert.NotEqual(t, k1, k2)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{URL: "mem://", URLTTL: time.Hour}, logger.Nop())
	require.NoError(t, err)
	mem := s.(*MemoryStore)
	mem.now = func() time.Time { return time.Unix(1000, 0) }

	_, err = mem.SignedURL(ctx, "certificates/a.png")
	assert.ErrorIs(t, err, ErrNotFound)

	data := []byte{1, 2, 3}
	require.NoError(t, mem.Put(ctx, "certificates/a.png", data, ContentTypePNG))
	data[0] = 9

	got, ct, ok := mem.Get("certificates/a.png")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, ContentTypePNG, ct)

	u, err := mem.SignedURL(ctx, "certificates/a.png")
	require.NoError(t, err)
	assert.Equal(t, "mem://certificates/a.png?expires=4600", u)

	require.NoError(t, mem.Delete(ctx, "certificates/a.png"))
	require.NoError(t, mem.Delete(ctx, "certificates/a.png"))
	assert.Zero(t, mem.Len())
}

func testS3Client(httpClient *http.Client) *s3.Client {
	return s3.New(s3.Options{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
		}),
		HTTPClient: httpClient,
	})
}

func TestS3Store_SignedURL(t *testing.T) {
	st := newS3Store(testS3Client(http.DefaultClient), "certs", "prod/", 2*time.Hour)

	raw, err := st.SignedURL(context.Background(), "certificates/1-abc.png")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, u.Host, "certs")
	assert.True(t, strings.HasSuffix(u.Path, "/prod/certificates/1-abc.png"), u.Path)
	assert.Equal(t, "7200", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3Store_Put(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterRegexpResponder("PUT", regexp.MustCompile(`certs.*/certificates/1-abc\.png`),
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, ContentTypePNG, req.Header.Get("Content-Type"))
			return httpmock.NewStringResponse(200, ""), nil
		})

	st := newS3Store(testS3Client(client), "certs", "", time.Hour)
	require.NoError(t, st.Put(context.Background(), "certificates/1-abc.png", []byte("png"), ContentTypePNG))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestS3Store_Delete(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterRegexpResponder("DELETE", regexp.MustCompile(`certs.*/prod/certificates/1-abc\.png`),
		httpmock.NewStringResponder(204, ""))

	st := newS3Store(testS3Client(client), "certs", "prod/", time.Hour)
	require.NoError(t, st.Delete(context.Background(), "certificates/1-abc.png"))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
