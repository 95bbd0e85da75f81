package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/certificates/domain"
	csvc "github.com/corvusHold/certify/internal/certificates/service"
	"github.com/corvusHold/certify/internal/platform/validation"
	"github.com/corvusHold/certify/internal/render"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
	tokdomain "github.com/corvusHold/certify/internal/tokens/domain"
)

const maxCSVBytes = 10 << 20

type certService interface {
	StartBatch(ctx context.Context, in csvc.StartBatchInput) (csvc.BatchResult, []string, error)
	Generate(ctx context.Context, in csvc.SingleInput) (domain.Certificate, error)
	Batch(ctx context.Context, creatorID, batchID uuid.UUID) (domain.Batch, error)
	Failures(ctx context.Context, creatorID, batchID uuid.UUID) (csvc.Failures, error)
	Validate(ctx context.Context, uid string) (csvc.Validation, error)
}

type Controller struct {
	svc      certService
	jwtMW    echo.MiddlewareFunc
	apiKeyMW echo.MiddlewareFunc
	rateMW   echo.MiddlewareFunc
}

func New(svc certService) *Controller { return &Controller{svc: svc} }

// WithJWT injects a JWT middleware for the interactive endpoints.
func (h *Controller) WithJWT(mw echo.MiddlewareFunc) *Controller { h.jwtMW = mw; return h }

// WithAPIKey injects the bearer API key middleware for the external endpoint.
func (h *Controller) WithAPIKey(mw echo.MiddlewareFunc) *Controller { h.apiKeyMW = mw; return h }

// WithRateLimit injects the request-rate gate for the external endpoint.
func (h *Controller) WithRateLimit(mw echo.MiddlewareFunc) *Controller { h.rateMW = mw; return h }

func (h *Controller) Register(e *echo.Echo) {
	jwt := []echo.MiddlewareFunc{}
	if h.jwtMW != nil {
		jwt = append(jwt, h.jwtMW)
	}
	e.POST("/api/v1/batches", h.startBatch, jwt...)
	e.GET("/api/v1/batches/:id", h.getBatch, jwt...)
	e.GET("/api/v1/batches/:id/failures", h.getFailures, jwt...)

	api := []echo.MiddlewareFunc{}
	if h.rateMW != nil {
		api = append(api, h.rateMW)
	}
	if h.apiKeyMW != nil {
		api = append(api, h.apiKeyMW)
	}
	e.POST("/api/v1/certificates/generate", h.generate, api...)
	e.GET("/api/v1/certificates/validate/:uid", h.validate)
}

type insufficientResponse struct {
	Error     string `json:"error"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type batchForm struct {
	TemplateID string `form:"template_id" validate:"required,uuid"`
	Name       string `form:"name" validate:"required,max=200"`
	CC         string `form:"cc" validate:"omitempty,email_list"`
	BCC        string `form:"bcc" validate:"omitempty,email_list"`
}

type batchResponse struct {
	Batch          domain.Batch `json:"batch"`
	MissingColumns []string     `json:"missingColumns,omitempty"`
}

// Start Batch godoc
// @Summary      Generate certificates for every row of an uploaded CSV
// @Tags         batches
// @Accept       multipart/form-data
// @Produce      json
// @Param        template_id  formData  string  true   "Template ID (UUID)"
// @Param        name         formData  string  true   "Batch name"
// @Param        file         formData  file    true   "CSV with a header row"
// @Param        cc           formData  string  false  "comma separated CC addresses"
// @Param        bcc          formData  string  false  "comma separated BCC addresses"
// @Success      201  {object}  batchResponse
// @Failure      400  {object}  map[string]string
// @Failure      402  {object}  insufficientResponse
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/batches [post]
func (h *Controller) startBatch(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var form batchForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid form"})
	}
	if err := c.Validate(&form); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	if fh.Size > maxCSVBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot read file"})
	}
	defer f.Close()

	res, missing, err := h.svc.StartBatch(c.Request().Context(), csvc.StartBatchInput{
		CreatorID:  uid,
		TemplateID: uuid.MustParse(form.TemplateID),
		Name:       strings.TrimSpace(form.Name),
		CSV:        f,
		CC:         validation.SplitEmails(form.CC),
		BCC:        validation.SplitEmails(form.BCC),
	})
	if err != nil {
		return writeError(c, err, "batch generation failed")
	}
	return c.JSON(http.StatusCreated, batchResponse{Batch: res.Batch, MissingColumns: missing})
}

// Get Batch godoc
// @Summary      Batch progress
// @Tags         batches
// @Produce      json
// @Param        id  path  string  true  "Batch ID (UUID)"
// @Success      200  {object}  domain.Batch
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/batches/{id} [get]
func (h *Controller) getBatch(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	b, err := h.svc.Batch(c.Request().Context(), uid, id)
	if err != nil {
		return writeError(c, err, "failed to load batch")
	}
	return c.JSON(http.StatusOK, b)
}

// Get Batch Failures godoc
// @Summary      Failed certificates and invalid emails of a batch
// @Tags         batches
// @Produce      json
// @Param        id  path  string  true  "Batch ID (UUID)"
// @Success      200  {object}  csvc.Failures
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/batches/{id}/failures [get]
func (h *Controller) getFailures(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	f, err := h.svc.Failures(c.Request().Context(), uid, id)
	if err != nil {
		return writeError(c, err, "failed to load failures")
	}
	return c.JSON(http.StatusOK, f)
}

type generateRequest struct {
	TemplateID   string            `json:"templateId" validate:"required,uuid"`
	Placeholders map[string]string `json:"placeholders"`
	Email        string            `json:"email" validate:"required,email_lite"`
}

type generateResponse struct {
	CertificateURL string    `json:"certificateUrl"`
	CertificateID  uuid.UUID `json:"certificateId"`
}

type missingResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missingPlaceholders"`
}

// Generate Certificate godoc
// @Summary      Generate one certificate (external API)
// @Tags         certificates
// @Accept       json
// @Produce      json
// @Param        body  body  generateRequest  true  "placeholder values"
// @Success      201  {object}  generateResponse
// @Failure      400  {object}  missingResponse
// @Failure      401  {object}  map[string]string
// @Failure      402  {object}  insufficientResponse
// @Failure      429  {object}  map[string]any
// @Security     ApiKeyAuth
// @Router       /api/v1/certificates/generate [post]
func (h *Controller) generate(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	cert, err := h.svc.Generate(c.Request().Context(), csvc.SingleInput{
		CreatorID:    uid,
		TemplateID:   uuid.MustParse(req.TemplateID),
		Placeholders: req.Placeholders,
		Email:        req.Email,
	})
	if err != nil {
		return writeError(c, err, "certificate generation failed")
	}
	return c.JSON(http.StatusCreated, generateResponse{CertificateURL: cert.GeneratedImageURL, CertificateID: cert.ID})
}

// Validate Certificate godoc
// @Summary      Public certificate lookup
// @Tags         certificates
// @Produce      json
// @Param        uid  path  string  true  "Certificate unique identifier"
// @Success      200  {object}  csvc.Validation
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/certificates/validate/{uid} [get]
func (h *Controller) validate(c echo.Context) error {
	v, err := h.svc.Validate(c.Request().Context(), c.Param("uid"))
	if errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "certificate not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "validation failed"})
	}
	return c.JSON(http.StatusOK, v)
}

func writeError(c echo.Context, err error, fallback string) error {
	var insufficient *tokdomain.InsufficientError
	var missing *domain.MissingPlaceholdersError
	switch {
	case errors.As(err, &insufficient):
		return c.JSON(http.StatusPaymentRequired, insufficientResponse{
			Error:     "Insufficient tokens",
			Required:  insufficient.Required,
			Available: insufficient.Available,
		})
	case errors.As(err, &missing):
		return c.JSON(http.StatusBadRequest, missingResponse{Error: "missing placeholders", Missing: missing.Missing})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "batch not found"})
	case errors.Is(err, tdomain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "template not found"})
	case errors.Is(err, domain.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
	case errors.Is(err, render.ErrBackground):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "template image unavailable"})
	case errors.Is(err, domain.ErrInvalidCSV), errors.Is(err, domain.ErrInvalidTemplate):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": fallback})
}
