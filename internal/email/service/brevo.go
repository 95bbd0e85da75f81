package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/config"
	edomain "github.com/corvusHold/certify/internal/email/domain"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// Ensure Brevo implements domain.Sender
var _ edomain.Sender = (*Brevo)(nil)

const brevoSendURL = "https://api.brevo.com/v3/smtp/email"

type Brevo struct {
	cfg      config.Config
	settings sdomain.Service
	http     *http.Client
}

func NewBrevo(settings sdomain.Service, cfg config.Config) *Brevo {
	return &Brevo{settings: settings, cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

// WithHTTPClient swaps the HTTP client.
func (b *Brevo) WithHTTPClient(c *http.Client) *Brevo { b.http = c; return b }

type brevoAddress struct {
	Email string `json:"email"`
}

type brevoEmail struct {
	To          []brevoAddress `json:"to"`
	CC          []brevoAddress `json:"cc,omitempty"`
	BCC         []brevoAddress `json:"bcc,omitempty"`
	Sender      brevoAddress   `json:"sender"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent,omitempty"`
	HTMLContent string         `json:"htmlContent,omitempty"`
}

func addresses(list []string) []brevoAddress {
	out := make([]brevoAddress, 0, len(list))
	for _, a := range list {
		out = append(out, brevoAddress{Email: a})
	}
	return out
}

func (b *Brevo) Send(ctx context.Context, ownerID uuid.UUID, m edomain.Message) error {
	apiKey, _ := b.settings.GetString(ctx, sdomain.KeyBrevoAPIKey, &ownerID, b.cfg.BrevoAPIKey)
	sender, _ := b.settings.GetString(ctx, sdomain.KeyBrevoSender, &ownerID, b.cfg.BrevoSender)
	if m.From != "" {
		sender = m.From
	}
	if apiKey == "" || sender == "" {
		return edomain.ErrNotConfigured
	}
	payload := brevoEmail{
		To:          []brevoAddress{{Email: m.To}},
		CC:          addresses(m.CC),
		BCC:         addresses(m.BCC),
		Sender:      brevoAddress{Email: sender},
		Subject:     m.Subject,
		TextContent: m.Text,
		HTMLContent: m.HTML,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoSendURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", apiKey)
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: %s", resp.Status)
	}
	return nil
}
