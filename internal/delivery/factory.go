package delivery

import (
	"github.com/rs/zerolog"

	"github.com/corvusHold/certify/internal/config"
	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
	"github.com/corvusHold/certify/internal/delivery/queue"
	dsvc "github.com/corvusHold/certify/internal/delivery/service"
	"github.com/corvusHold/certify/internal/email"
	"github.com/corvusHold/certify/internal/logger"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// OpenQueue connects to RabbitMQ when AMQP_URL is set and falls back to an
// in-process queue otherwise.
func OpenQueue(cfg config.Config, log zerolog.Logger) (ddomain.Queue, error) {
	log = logger.Component(log, "delivery")
	if cfg.AMQPURL == "" {
		log.Warn().Msg("AMQP_URL not set; using in-process delivery queue")
		return queue.NewMemory(1024), nil
	}
	q, err := queue.DialAMQP(cfg.AMQPURL, cfg.DeliveryWorkers, log)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewPool builds the worker pool that sends queued certificate emails.
func NewPool(q ddomain.Queue, settings sdomain.Service, cfg config.Config, log zerolog.Logger) *dsvc.Pool {
	return dsvc.NewPool(q, email.NewSender(settings, cfg, log), cfg.DeliveryWorkers,
		cfg.DeliveryMaxAttempts, cfg.DeliveryBackoff, logger.Component(log, "delivery")).
		WithUnavailableWait(email.BreakerCooldown)
}
