package apikeys

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	ctrl "github.com/corvusHold/certify/internal/apikeys/controller"
	repo "github.com/corvusHold/certify/internal/apikeys/repository"
	svc "github.com/corvusHold/certify/internal/apikeys/service"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	"github.com/corvusHold/certify/internal/config"
	urepo "github.com/corvusHold/certify/internal/users/repository"
)

// Register wires API key management routes and returns the service used to
// authenticate external requests.
func Register(e *echo.Echo, pg *pgxpool.Pool, cfg config.Config, log zerolog.Logger) *svc.Service {
	s := svc.New(repo.New(pg), urepo.New(pg), log)
	ctrl.New(s).WithJWT(amw.NewJWT(cfg)).Register(e)
	return s
}
