package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/platform/validation"
	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

type Controller struct {
	svc   tdomain.Service
	jwtMW echo.MiddlewareFunc
}

func New(svc tdomain.Service) *Controller { return &Controller{svc: svc} }

// WithJWT injects a JWT middleware for these endpoints.
func (h *Controller) WithJWT(mw echo.MiddlewareFunc) *Controller { h.jwtMW = mw; return h }

// Register mounts token endpoints under /api/v1.
func (h *Controller) Register(e *echo.Echo) {
	mw := []echo.MiddlewareFunc{}
	if h.jwtMW != nil {
		mw = append(mw, h.jwtMW)
	}
	e.GET("/api/v1/tokens", h.getTokens, mw...)
	e.POST("/api/v1/admin/users/:id/tokens", h.creditTokens, append(mw, amw.RequireRole("admin"))...)
}

type tokensResponse struct {
	Balance int                   `json:"balance"`
	History []tdomain.Transaction `json:"history"`
}

type creditRequest struct {
	Amount int    `json:"amount" validate:"required,gt=0,lte=1000000"`
	Reason string `json:"reason" validate:"max=200"`
}

// Get Tokens godoc
// @Summary      Token balance and recent ledger entries of the caller
// @Tags         tokens
// @Produce      json
// @Param        limit  query  int  false  "history size (default 50)"
// @Success      200  {object}  tokensResponse
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/tokens [get]
func (h *Controller) getTokens(c echo.Context) error {
	uid, ok := amw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx := c.Request().Context()
	balance, err := h.svc.Balance(ctx, uid)
	if errors.Is(err, udomain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load balance"})
	}
	hist, err := h.svc.History(ctx, uid, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
	}
	if hist == nil {
		hist = []tdomain.Transaction{}
	}
	return c.JSON(http.StatusOK, tokensResponse{Balance: balance, History: hist})
}

// Credit Tokens godoc
// @Summary      Add tokens to a user (admin)
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "User ID (UUID)"
// @Param        body  body  creditRequest  true  "credit"
// @Success      200  {object}  map[string]int
// @Failure      400  {object}  validation.ErrorBody
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/v1/admin/users/{id}/tokens [post]
func (h *Controller) creditTokens(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	var req creditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	balance, err := h.svc.Credit(c.Request().Context(), id, req.Amount, req.Reason)
	if errors.Is(err, udomain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "credit failed"})
	}
	return c.JSON(http.StatusOK, map[string]int{"balance": balance})
}
