package controller

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/bounces/domain"
	cdomain "github.com/corvusHold/certify/internal/certificates/domain"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// bounceEvents are the Brevo events that mark an address undeliverable.
var bounceEvents = map[string]bool{
	"hard_bounce":   true,
	"soft_bounce":   true,
	"blocked":       true,
	"invalid_email": true,
}

type bounceService interface {
	Record(ctx context.Context, email, event string) error
	ForBatch(ctx context.Context, creatorID, batchID uuid.UUID) ([]domain.Bounce, error)
}

type Controller struct {
	svc    bounceService
	secret string
	jwtMW  echo.MiddlewareFunc
	log    zerolog.Logger
}

func New(svc bounceService, secret string, log zerolog.Logger) *Controller {
	return &Controller{svc: svc, secret: secret, log: log}
}

// WithJWT injects a JWT middleware for the creator endpoints.
func (h *Controller) WithJWT(mw echo.MiddlewareFunc) *Controller { h.jwtMW = mw; return h }

func (h *Controller) Register(e *echo.Echo) {
	mw := []echo.MiddlewareFunc{}
	if h.jwtMW != nil {
		mw = append(mw, h.jwtMW)
	}
	e.POST("/api/v1/webhooks/brevo", h.brevoWebhook)
	e.GET("/api/v1/batches/:id/bounces", h.batchBounces, mw...)
}

type brevoEvent struct {
	Event string `json:"event"`
	Email string `json:"email"`
}

// Brevo Webhook godoc
// @Summary      Ingest Brevo delivery events
// @Description  Accepts one event object or an array of them. Bounce-like events add the address to the bounce set.
// @Tags         bounces
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Secret  header  string  true  "shared secret"
// @Success      200  {object}  map[string]int
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/webhooks/brevo [post]
func (h *Controller) brevoWebhook(c echo.Context) error {
	if h.secret == "" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "webhook not configured"})
	}
	got := c.Request().Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	var events []brevoEvent
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &events)
	} else {
		var ev brevoEvent
		err = json.Unmarshal(body, &ev)
		events = []brevoEvent{ev}
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}

	recorded := 0
	for _, ev := range events {
		if !bounceEvents[strings.ToLower(ev.Event)] {
			continue
		}
		if err := h.svc.Record(c.Request().Context(), ev.Email, ev.Event); err != nil {
			h.log.Warn().Err(err).Str("event", ev.Event).Msg("bounce not recorded")
			continue
		}
		recorded++
	}
	return c.JSON(http.StatusOK, map[string]int{"recorded": recorded})
}

// Batch Bounces godoc
// @Summary      Bounced recipients of a batch
// @Tags         bounces
// @Produce      json
// @Param        id  path  string  true  "Batch ID (UUID)"
// @Success      200  {array}  domain.Bounce
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/batches/{id}/bounces [get]
func (h *Controller) batchBounces(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	out, err := h.svc.ForBatch(c.Request().Context(), uid, id)
	if errors.Is(err, cdomain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "batch not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load bounces"})
	}
	return c.JSON(http.StatusOK, out)
}
