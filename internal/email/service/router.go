package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/config"
	edomain "github.com/corvusHold/certify/internal/email/domain"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// Ensure Router implements domain.Sender
var _ edomain.Sender = (*Router)(nil)

// Router picks SMTP or Brevo per creator.
type Router struct {
	cfg      config.Config
	settings sdomain.Service
	smtp     edomain.Sender
	brevo    edomain.Sender
}

func NewRouter(settings sdomain.Service, cfg config.Config) *Router {
	return &Router{cfg: cfg, settings: settings, smtp: NewSMTP(settings, cfg), brevo: NewBrevo(settings, cfg)}
}

func (r *Router) Send(ctx context.Context, ownerID uuid.UUID, m edomain.Message) error {
	prov, _ := r.settings.GetString(ctx, sdomain.KeyEmailProvider, &ownerID, r.cfg.EmailProvider)
	switch strings.ToLower(prov) {
	case "brevo":
		return r.brevo.Send(ctx, ownerID, m)
	default:
		return r.smtp.Send(ctx, ownerID, m)
	}
}
