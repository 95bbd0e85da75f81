package email

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/corvusHold/certify/internal/config"
	svc "github.com/corvusHold/certify/internal/email/service"
	"github.com/corvusHold/certify/internal/logger"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// BreakerCooldown is how long the provider stays disabled after tripping.
const BreakerCooldown = 30 * time.Second

// NewSender returns the provider router behind a circuit breaker.
func NewSender(settings sdomain.Service, cfg config.Config, log zerolog.Logger) *svc.Breaker {
	return svc.NewBreaker(svc.NewRouter(settings, cfg), BreakerCooldown, logger.Component(log, "email"))
}
