package certificates

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	akmw "github.com/corvusHold/certify/internal/apikeys/middleware"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	ctrl "github.com/corvusHold/certify/internal/certificates/controller"
	repo "github.com/corvusHold/certify/internal/certificates/repository"
	svc "github.com/corvusHold/certify/internal/certificates/service"
	"github.com/corvusHold/certify/internal/config"
	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
	dsvc "github.com/corvusHold/certify/internal/delivery/service"
	evsvc "github.com/corvusHold/certify/internal/events/service"
	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/platform/ratelimit"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
	"github.com/corvusHold/certify/internal/storage"
	trepo "github.com/corvusHold/certify/internal/templates/repository"
	tokrepo "github.com/corvusHold/certify/internal/tokens/repository"
	toksvc "github.com/corvusHold/certify/internal/tokens/service"
	urepo "github.com/corvusHold/certify/internal/users/repository"
)

// Deps are the process-wide collaborators built in main.
type Deps struct {
	Renderer  svc.Renderer
	Store     storage.Store
	Queue     ddomain.Enqueuer
	Settings  sdomain.Service
	APIKeys   akmw.Authenticator
	RateStore ratelimit.Store
}

// Register wires the generation pipeline and registers HTTP routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, cfg config.Config, log zerolog.Logger, d Deps) *svc.Service {
	pub := evsvc.NewLogger(log)
	orch := svc.NewOrchestrator(svc.Deps{
		Repo:        repo.New(pg),
		Quota:       toksvc.New(tokrepo.New(pg), pub),
		Renderer:    d.Renderer,
		Store:       d.Store,
		Queue:       d.Queue,
		Composer:    dsvc.NewComposer(d.Settings, cfg),
		Identifiers: svc.UUIDIdentifiers{},
		Publisher:   pub,
		Concurrency: cfg.RenderConcurrency,
		Log:         logger.Component(log, "orchestrator"),
	})
	s := svc.New(orch, trepo.New(pg), urepo.New(pg))

	rate := ratelimit.Middleware(ratelimit.Policy{
		Name:   "certificates:generate",
		Window: cfg.APIRateWindow,
		Limit:  cfg.APIRateLimit,
		Key:    ratelimit.KeyIP("certify:rl:generate"),
		Source: "ip",
	}, d.RateStore, log)

	ctrl.New(s).
		WithJWT(amw.NewJWT(cfg)).
		WithAPIKey(akmw.Bearer(d.APIKeys)).
		WithRateLimit(rate).
		Register(e)
	return s
}
