package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/config"
	edomain "github.com/corvusHold/certify/internal/email/domain"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

// Ensure SMTP implements domain.Sender
var _ edomain.Sender = (*SMTP)(nil)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTP struct {
	cfg      config.Config
	settings sdomain.Service
	send     sendMailFunc
}

func NewSMTP(settings sdomain.Service, cfg config.Config) *SMTP {
	return &SMTP{settings: settings, cfg: cfg, send: smtp.SendMail}
}

func (s *SMTP) Send(ctx context.Context, ownerID uuid.UUID, m edomain.Message) error {
	host, _ := s.settings.GetString(ctx, sdomain.KeySMTPHost, &ownerID, s.cfg.SMTPHost)
	from, _ := s.settings.GetString(ctx, sdomain.KeyEmailFrom, &ownerID, s.cfg.EmailFrom)
	username, _ := s.settings.GetString(ctx, sdomain.KeySMTPUsername, &ownerID, s.cfg.SMTPUsername)
	password, _ := s.settings.GetString(ctx, sdomain.KeySMTPPassword, &ownerID, s.cfg.SMTPPassword)
	port, _ := s.settings.GetInt(ctx, sdomain.KeySMTPPort, &ownerID, s.cfg.SMTPPort)
	if m.From != "" {
		from = m.From
	}
	if host == "" || from == "" {
		return edomain.ErrNotConfigured
	}

	msg, err := buildMIME(from, m)
	if err != nil {
		return err
	}
	rcpt := append([]string{m.To}, m.CC...)
	rcpt = append(rcpt, m.BCC...)

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return s.send(host+":"+strconv.Itoa(port), auth, from, rcpt, msg)
}

// buildMIME renders a multipart/alternative message. Bcc never appears in headers.
func buildMIME(from string, m edomain.Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	h("From", from)
	h("To", m.To)
	if len(m.CC) > 0 {
		h("Cc", strings.Join(m.CC, ", "))
	}
	h("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	h("MIME-Version", "1.0")
	h("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	parts := []struct{ ctype, body string }{{"text/plain", m.Text}, {"text/html", m.HTML}}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.ctype + "; charset=utf-8"},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
