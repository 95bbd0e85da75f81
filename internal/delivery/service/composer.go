package service

import (
	"bytes"
	"context"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/config"
	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
	"github.com/corvusHold/certify/internal/records"
	sdomain "github.com/corvusHold/certify/internal/settings/domain"
)

const (
	DefaultSubject = "Your certificate is ready"
	DefaultBody    = "Hello {{Name}},\n\nYour certificate is ready. You can download it here:\n{{certificate_url}}"

	// VarCertificateURL is substituted with the signed image link.
	VarCertificateURL = "certificate_url"
)

var varPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

var htmlLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif">
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}<p><a href="{{.URL}}">View your certificate</a></p>
</body></html>`))

// ComposeInput is what the pipeline knows about a freshly generated certificate.
type ComposeInput struct {
	CertificateID  uuid.UUID
	CreatorID      uuid.UUID
	Record         records.Record
	RecipientEmail string
	CertificateURL string
	CC             []string
	BCC            []string
}

// Composer builds delivery jobs from the creator's email templates.
type Composer struct {
	settings sdomain.Service
	cfg      config.Config
}

func NewComposer(settings sdomain.Service, cfg config.Config) *Composer {
	return &Composer{settings: settings, cfg: cfg}
}

func (c *Composer) Compose(ctx context.Context, in ComposeInput) (ddomain.Job, error) {
	owner := in.CreatorID
	subjectTpl, _ := c.settings.GetString(ctx, sdomain.KeyEmailSubjectTemplate, &owner, DefaultSubject)
	bodyTpl, _ := c.settings.GetString(ctx, sdomain.KeyEmailBodyTemplate, &owner, DefaultBody)
	from, _ := c.settings.GetString(ctx, sdomain.KeyEmailFrom, &owner, c.cfg.EmailFrom)

	text := Substitute(bodyTpl, in.Record, in.CertificateURL)
	var html bytes.Buffer
	err := htmlLayout.Execute(&html, struct {
		Paragraphs []string
		URL        string
	}{Paragraphs: paragraphs(text), URL: in.CertificateURL})
	if err != nil {
		return ddomain.Job{}, err
	}

	return ddomain.Job{
		ID:             uuid.New(),
		CertificateID:  in.CertificateID,
		CreatorID:      in.CreatorID,
		RecipientEmail: in.RecipientEmail,
		FromAddress:    from,
		Subject:        strings.TrimSpace(Substitute(subjectTpl, in.Record, in.CertificateURL)),
		TextBody:       text,
		HTMLBody:       html.String(),
		CC:             in.CC,
		BCC:            in.BCC,
		AttachmentURL:  in.CertificateURL,
		EnqueuedAt:     time.Now().UTC(),
	}, nil
}

// Substitute replaces {{Column}} with the record value (any case) and
// {{certificate_url}} with url. Unknown names become empty.
func Substitute(tpl string, rec records.Record, url string) string {
	return varPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		if strings.EqualFold(name, VarCertificateURL) {
			return url
		}
		v, _ := rec.Lookup(name)
		return v
	})
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
