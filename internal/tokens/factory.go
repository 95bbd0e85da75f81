package tokens

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/config"
	evsvc "github.com/corvusHold/certify/internal/events/service"
	ctrl "github.com/corvusHold/certify/internal/tokens/controller"
	repo "github.com/corvusHold/certify/internal/tokens/repository"
	svc "github.com/corvusHold/certify/internal/tokens/service"
)

// Register wires the tokens module and registers HTTP routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, cfg config.Config, log zerolog.Logger) *svc.Service {
	s := svc.New(repo.New(pg), evsvc.NewLogger(log))
	ctrl.New(s).WithJWT(amw.NewJWT(cfg)).Register(e)
	return s
}
