package bounces

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	ctrl "github.com/corvusHold/certify/internal/bounces/controller"
	repo "github.com/corvusHold/certify/internal/bounces/repository"
	svc "github.com/corvusHold/certify/internal/bounces/service"
	crepo "github.com/corvusHold/certify/internal/certificates/repository"
	"github.com/corvusHold/certify/internal/config"
	evsvc "github.com/corvusHold/certify/internal/events/service"
	"github.com/corvusHold/certify/internal/logger"
)

// Register wires bounce ingestion and lookup routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, cfg config.Config, log zerolog.Logger) *svc.Service {
	s := svc.New(repo.New(pg), crepo.New(pg), evsvc.NewLogger(log))
	ctrl.New(s, cfg.WebhookSecret, logger.Component(log, "bounces")).WithJWT(amw.NewJWT(cfg)).Register(e)
	return s
}
