package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	evdomain "github.com/corvusHold/certify/internal/events/domain"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// Controller lets a creator manage their own email delivery settings.
// Only a whitelist of keys is exposed.
type Controller struct {
	repo    sdomain.Repository
	service sdomain.Service
	// Injected concerns
	jwtMW echo.MiddlewareFunc
	pub   evdomain.Publisher
}

func New(repo sdomain.Repository, service sdomain.Service) *Controller {
	return &Controller{repo: repo, service: service}
}

// Register mounts settings endpoints under /api/v1.
func (h *Controller) Register(e *echo.Echo) {
	mw := []echo.MiddlewareFunc{}
	if h.jwtMW != nil {
		mw = append(mw, h.jwtMW)
	}
	e.GET("/api/v1/settings/email", h.getEmailSettings, mw...)
	e.PUT("/api/v1/settings/email", h.putEmailSettings, mw...)
}

// WithJWT injects a JWT middleware for these endpoints.
func (h *Controller) WithJWT(mw echo.MiddlewareFunc) *Controller { h.jwtMW = mw; return h }

// WithPublisher injects an audit event publisher.
func (h *Controller) WithPublisher(p evdomain.Publisher) *Controller { h.pub = p; return h }

type emailSettingsResponse struct {
	Provider        string `json:"provider"`
	From            string `json:"from"`
	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`
	SMTPHost        string `json:"smtp_host"`
	SMTPPort        string `json:"smtp_port"`
	SMTPUsername    string `json:"smtp_username"`
	SMTPPassword    string `json:"smtp_password,omitempty"` // masked
	BrevoAPIKey     string `json:"brevo_api_key,omitempty"` // masked
	BrevoSender     string `json:"brevo_sender"`
}

type putEmailSettingsRequest struct {
	Provider        *string `json:"provider"`
	From            *string `json:"from"`
	SubjectTemplate *string `json:"subject_template"`
	BodyTemplate    *string `json:"body_template"`
	SMTPHost        *string `json:"smtp_host"`
	SMTPPort        *string `json:"smtp_port"`
	SMTPUsername    *string `json:"smtp_username"`
	SMTPPassword    *string `json:"smtp_password"`
	BrevoAPIKey     *string `json:"brevo_api_key"`
	BrevoSender     *string `json:"brevo_sender"`
}

func (r putEmailSettingsRequest) fields() map[string]*string {
	return map[string]*string{
		sdomain.KeyEmailProvider:        r.Provider,
		sdomain.KeyEmailFrom:            r.From,
		sdomain.KeyEmailSubjectTemplate: r.SubjectTemplate,
		sdomain.KeyEmailBodyTemplate:    r.BodyTemplate,
		sdomain.KeySMTPHost:             r.SMTPHost,
		sdomain.KeySMTPPort:             r.SMTPPort,
		sdomain.KeySMTPUsername:         r.SMTPUsername,
		sdomain.KeySMTPPassword:         r.SMTPPassword,
		sdomain.KeyBrevoAPIKey:          r.BrevoAPIKey,
		sdomain.KeyBrevoSender:          r.BrevoSender,
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Get Email Settings godoc
// @Summary      Get the caller's email delivery settings
// @Tags         settings
// @Produce      json
// @Success      200  {object}  emailSettingsResponse
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/settings/email [get]
func (h *Controller) getEmailSettings(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	get := func(key string) string {
		v, _ := h.service.GetString(ctx, key, &uid, "")
		return v
	}
	return c.JSON(http.StatusOK, emailSettingsResponse{
		Provider:        get(sdomain.KeyEmailProvider),
		From:            get(sdomain.KeyEmailFrom),
		SubjectTemplate: get(sdomain.KeyEmailSubjectTemplate),
		BodyTemplate:    get(sdomain.KeyEmailBodyTemplate),
		SMTPHost:        get(sdomain.KeySMTPHost),
		SMTPPort:        get(sdomain.KeySMTPPort),
		SMTPUsername:    get(sdomain.KeySMTPUsername),
		SMTPPassword:    mask(get(sdomain.KeySMTPPassword)),
		BrevoAPIKey:     mask(get(sdomain.KeyBrevoAPIKey)),
		BrevoSender:     get(sdomain.KeyBrevoSender),
	})
}

// Put Email Settings godoc
// @Summary      Upsert the caller's email delivery settings
// @Tags         settings
// @Accept       json
// @Param        body  body  putEmailSettingsRequest  true  "settings"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/settings/email [put]
func (h *Controller) putEmailSettings(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var req putEmailSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if req.Provider != nil {
		v := strings.ToLower(strings.TrimSpace(*req.Provider))
		if v != "" && v != "smtp" && v != "brevo" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid provider"})
		}
		req.Provider = &v
	}
	if req.SMTPPort != nil && strings.TrimSpace(*req.SMTPPort) != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(*req.SMTPPort)); err != nil || p <= 0 || p > 65535 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid smtp_port"})
		}
	}

	ctx := c.Request().Context()
	changed := make([]string, 0, 4)
	meta := map[string]string{}
	for key, v := range req.fields() {
		if v == nil {
			continue
		}
		secret := sdomain.SecretKeys[key]
		if err := h.repo.Upsert(ctx, key, &uid, *v, secret); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		changed = append(changed, key)
		if secret {
			meta[key] = "redacted"
		}
	}
	if h.pub != nil && len(changed) > 0 {
		meta["changed"] = strings.Join(changed, ",")
		_ = h.pub.Publish(ctx, evdomain.Event{Type: "settings.update.success", UserID: uid, Meta: meta, Time: time.Now()})
	}
	return c.NoContent(http.StatusNoContent)
}
