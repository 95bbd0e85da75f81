package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/platform/validation"
)

type keyService interface {
	Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, adomain.APIKey, error)
	Revoke(ctx context.Context, userID, keyID uuid.UUID) error
}

type Controller struct {
	svc   keyService
	jwtMW echo.MiddlewareFunc
}

func New(svc keyService) *Controller { return &Controller{svc: svc} }

// WithJWT injects a JWT middleware for these endpoints.
func (h *Controller) WithJWT(mw echo.MiddlewareFunc) *Controller { h.jwtMW = mw; return h }

func (h *Controller) Register(e *echo.Echo) {
	mw := []echo.MiddlewareFunc{}
	if h.jwtMW != nil {
		mw = append(mw, h.jwtMW)
	}
	e.POST("/api/v1/apikeys", h.create, mw...)
	e.DELETE("/api/v1/apikeys/:id", h.revoke, mw...)
}

type createRequest struct {
	// TTL is a Go duration ("720h"); empty means no expiry.
	TTL string `json:"ttl" validate:"omitempty,max=16"`
}

type createResponse struct {
	Key    string         `json:"key"`
	APIKey adomain.APIKey `json:"apiKey"`
}

// Create API Key godoc
// @Summary      Create an API key for the external generate endpoint
// @Description  The raw key is returned once.
// @Tags         apikeys
// @Accept       json
// @Produce      json
// @Success      201  {object}  createResponse
// @Failure      400  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/apikeys [post]
func (h *Controller) create(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ttl"})
		}
		ttl = d
	}
	raw, k, err := h.svc.Create(c.Request().Context(), uid, ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create api key"})
	}
	return c.JSON(http.StatusCreated, createResponse{Key: raw, APIKey: k})
}

// Revoke API Key godoc
// @Summary      Deactivate one of the caller's API keys
// @Tags         apikeys
// @Param        id   path  string  true  "API key ID (UUID)"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/apikeys/{id} [delete]
func (h *Controller) revoke(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	err = h.svc.Revoke(c.Request().Context(), uid, id)
	if errors.Is(err, adomain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "api key not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to revoke api key"})
	}
	return c.NoContent(http.StatusNoContent)
}
