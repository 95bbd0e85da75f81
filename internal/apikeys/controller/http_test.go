package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/platform/validation"
)

type fakeKeys struct {
	gotTTL time.Duration
}

func (f *fakeKeys) Create(_ context.Context, userID uuid.UUID, ttl time.Duration) (string, adomain.APIKey, error) {
	f.gotTTL = ttl
	return "ck_raw", adomain.APIKey{ID: uuid.New(), UserID: userID, Prefix: "ck_raw", IsActive: true}, nil
}

func (f *fakeKeys) Revoke(_ context.Context, userID, keyID uuid.UUID) error {
	return adomain.ErrNotFound
}

// asUser stands in for the JWT middleware.
func asUser(id uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			amw.WithUserID(c, id)
			return next(c)
		}
	}
}

func TestCreateAndRevoke(t *testing.T) {
	user := uuid.New()
	keys := &fakeKeys{}
	e := echo.New()
	e.Validator = validation.New()
	New(keys).WithJWT(asUser(user)).Register(e)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/apikeys", strings.NewReader(`{"ttl":"720h"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 720*time.Hour, keys.gotTTL)

	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ck_raw", resp.Key)
	assert.Equal(t, user, resp.APIKey.UserID)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/apikeys", strings.NewReader(`{"ttl":"soon"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/apikeys/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
