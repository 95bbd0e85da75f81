package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	akmw "github.com/corvusHold/certify/internal/apikeys/middleware"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/certificates/domain"
	csvc "github.com/corvusHold/certify/internal/certificates/service"
	"github.com/corvusHold/certify/internal/config"
	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/platform/ratelimit"
	"github.com/corvusHold/certify/internal/platform/validation"
	"github.com/corvusHold/certify/internal/render"
	tokdomain "github.com/corvusHold/certify/internal/tokens/domain"
)

const (
	signingKey = "certificates-test-key-0123456789"
	rawKey     = "ck_test"
)

type fakeService struct {
	startErr  error
	startIn   csvc.StartBatchInput
	csv       string
	genErr    error
	genIn     csvc.SingleInput
	batches   map[uuid.UUID]domain.Batch
	validated map[string]csvc.Validation
}

func (f *fakeService) StartBatch(_ context.Context, in csvc.StartBatchInput) (csvc.BatchResult, []string, error) {
	f.startIn = in
	raw, _ := io.ReadAll(in.CSV)
	f.csv = string(raw)
	if f.startErr != nil {
		return csvc.BatchResult{}, nil, f.startErr
	}
	return csvc.BatchResult{Batch: domain.Batch{ID: uuid.New(), Name: in.Name, Status: domain.BatchCompleted}}, []string{"Course"}, nil
}

func (f *fakeService) Generate(_ context.Context, in csvc.SingleInput) (domain.Certificate, error) {
	f.genIn = in
	if f.genErr != nil {
		return domain.Certificate{}, f.genErr
	}
	return domain.Certificate{ID: uuid.New(), GeneratedImageURL: "https://cdn.example.com/c.png?sig=1"}, nil
}

func (f *fakeService) Batch(_ context.Context, creatorID, id uuid.UUID) (domain.Batch, error) {
	b, ok := f.batches[id]
	if !ok || b.CreatorID != creatorID {
		return domain.Batch{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeService) Failures(ctx context.Context, creatorID, id uuid.UUID) (csvc.Failures, error) {
	if _, err := f.Batch(ctx, creatorID, id); err != nil {
		return csvc.Failures{}, err
	}
	return csvc.Failures{Failed: []domain.FailedCertificate{{Row: 3, Reason: "background image unavailable"}}, InvalidEmails: []domain.InvalidEmail{}}, nil
}

func (f *fakeService) Validate(_ context.Context, uid string) (csvc.Validation, error) {
	v, ok := f.validated[uid]
	if !ok {
		return csvc.Validation{}, domain.ErrNotFound
	}
	return v, nil
}

type keyAuth struct{ owner uuid.UUID }

func (k keyAuth) Authenticate(_ context.Context, raw string) (adomain.APIKey, error) {
	if raw != rawKey {
		return adomain.APIKey{}, adomain.ErrNotFound
	}
	return adomain.APIKey{ID: uuid.New(), UserID: k.owner, IsActive: true}, nil
}

func token(t *testing.T, sub uuid.UUID) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub.String(), "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return s
}

func setup(svc *fakeService, owner uuid.UUID, limit int) *echo.Echo {
	e := echo.New()
	e.Validator = validation.New()
	rate := ratelimit.Middleware(ratelimit.Policy{
		Name: "certificates:generate", Window: time.Second, Limit: limit, Key: ratelimit.KeyIP("test"),
	}, ratelimit.NewMemoryStore(), logger.Nop())
	New(svc).
		WithJWT(amw.NewJWT(config.Config{JWTSigningKey: signingKey})).
		WithAPIKey(akmw.Bearer(keyAuth{owner: owner})).
		WithRateLimit(rate).
		Register(e)
	return e
}

func multipartBatch(t *testing.T, fields map[string]string, csv string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if csv != "" {
		fw, err := w.CreateFormFile("file", "recipients.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestStartBatch_Created(t *testing.T) {
	user := uuid.New()
	svc := &fakeService{}
	e := setup(svc, user, 10)
	tplID := uuid.New()

	body, ct := multipartBatch(t, map[string]string{
		"template_id": tplID.String(), "name": " spring ", "cc": "a@x.com; b@x.com",
	}, "Name,Email\nAlice,alice@x.com\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req.Header.Set("Authorization", "Bearer "+token(t, user))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, user, svc.startIn.CreatorID)
	assert.Equal(t, tplID, svc.startIn.TemplateID)
	assert.Equal(t, "spring", svc.startIn.Name)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, svc.startIn.CC)
	assert.Empty(t, svc.startIn.BCC)
	assert.Equal(t, "Name,Email\nAlice,alice@x.com\n", svc.csv)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []any{"Course"}, resp["missingColumns"])
}

func TestStartBatch_InsufficientTokens(t *testing.T) {
	user := uuid.New()
	e := setup(&fakeService{startErr: &tokdomain.InsufficientError{Required: 5, Available: 3}}, user, 10)

	body, ct := multipartBatch(t, map[string]string{"template_id": uuid.NewString(), "name": "b"}, "Name\nA\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req.Header.Set("Authorization", "Bearer "+token(t, user))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.JSONEq(t, `{"error":"Insufficient tokens","required":5,"available":3}`, rec.Body.String())
}

func TestStartBatch_BadInput(t *testing.T) {
	user := uuid.New()
	e := setup(&fakeService{}, user, 10)
	cases := map[string]struct {
		fields map[string]string
		csv    string
	}{
		"bad template id": {map[string]string{"template_id": "nope", "name": "b"}, "Name\nA\n"},
		"no name":         {map[string]string{"template_id": uuid.NewString()}, "Name\nA\n"},
		"bad bcc":         {map[string]string{"template_id": uuid.NewString(), "name": "b", "bcc": "x@"}, "Name\nA\n"},
		"no file":         {map[string]string{"template_id": uuid.NewString(), "name": "b"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			body, ct := multipartBatch(t, tc.fields, tc.csv)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
			req.Header.Set(echo.HeaderContentType, ct)
			req.Header.Set("Authorization", "Bearer "+token(t, user))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStartBatch_RequiresSession(t *testing.T) {
	e := setup(&fakeService{}, uuid.New(), 10)
	body, ct := multipartBatch(t, map[string]string{"template_id": uuid.NewString(), "name": "b"}, "Name\nA\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetBatchAndFailures_OwnerOnly(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	id := uuid.New()
	svc := &fakeService{batches: map[uuid.UUID]domain.Batch{
		id: {ID: id, CreatorID: owner, Progress: domain.Progress{Total: 3, Succeeded: 1, Failed: 1, InvalidEmails: 1}},
	}}
	e := setup(svc, owner, 10)

	get := func(path string, user uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, user))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/v1/batches/"+id.String(), owner)
	require.Equal(t, http.StatusOK, rec.Code)
	var b domain.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 3, b.Progress.Total)

	rec = get("/api/v1/batches/"+id.String()+"/failures", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "background image unavailable")

	assert.Equal(t, http.StatusNotFound, get("/api/v1/batches/"+id.String(), other).Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/batches/nope", owner).Code)
}

func apiRequest(body string, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/generate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.RemoteAddr = "203.0.113.7:5555"
	return req
}

func TestGenerate_Success(t *testing.T) {
	owner := uuid.New()
	svc := &fakeService{}
	e := setup(svc, owner, 10)
	tplID := uuid.New()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(`{"templateId":"`+tplID.String()+`","placeholders":{"Name":"Alice"},"email":"alice@x.com"}`, rawKey))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, owner, svc.genIn.CreatorID)
	assert.Equal(t, tplID, svc.genIn.TemplateID)
	assert.Equal(t, map[string]string{"Name": "Alice"}, svc.genIn.Placeholders)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example.com/c.png?sig=1", resp["certificateUrl"])
	assert.NotEmpty(t, resp["certificateId"])
}

func TestGenerate_MissingPlaceholders(t *testing.T) {
	e := setup(&fakeService{genErr: &domain.MissingPlaceholdersError{Missing: []string{"Course", "Date"}}}, uuid.New(), 10)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(`{"templateId":"`+uuid.NewString()+`","placeholders":{},"email":"a@x.com"}`, rawKey))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"missing placeholders","missingPlaceholders":["Course","Date"]}`, rec.Body.String())
}

func TestGenerate_BackgroundUnavailable(t *testing.T) {
	e := setup(&fakeService{genErr: fmt.Errorf("%w: 404", render.ErrBackground)}, uuid.New(), 10)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(`{"templateId":"`+uuid.NewString()+`","placeholders":{},"email":"a@x.com"}`, rawKey))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"template image unavailable"}`, rec.Body.String())
}

func TestGenerate_RejectsBadKey(t *testing.T) {
	e := setup(&fakeService{}, uuid.New(), 10)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(`{}`, "ck_wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(`{}`, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerate_RateLimited(t *testing.T) {
	e := setup(&fakeService{}, uuid.New(), 2)
	body := `{"templateId":"` + uuid.NewString() + `","placeholders":{},"email":"a@x.com"}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, apiRequest(body, rawKey))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, apiRequest(body, rawKey))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestValidate_Public(t *testing.T) {
	svc := &fakeService{validated: map[string]csvc.Validation{
		"abc": {Certificate: domain.Certificate{UniqueIdentifier: "abc"}, ImageURL: "https://cdn/x.png"},
	}}
	e := setup(svc, uuid.New(), 10)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/certificates/validate/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imageUrl":"https://cdn/x.png"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/certificates/validate/zzz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
