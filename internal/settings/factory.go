package settings

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/config"
	evsvc "github.com/corvusHold/certify/internal/events/service"
	ctrl "github.com/corvusHold/certify/internal/settings/controller"
	repo "github.com/corvusHold/certify/internal/settings/repository"
	svc "github.com/corvusHold/certify/internal/settings/service"
)

// Register wires the settings module and registers HTTP routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, cfg config.Config, log zerolog.Logger) *svc.Service {
	r := repo.New(pg)
	s := svc.New(r)
	c := ctrl.New(r, s)
	c.WithJWT(amw.NewJWT(cfg)).WithPublisher(evsvc.NewLogger(log))
	c.Register(e)
	return s
}
