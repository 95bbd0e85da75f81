package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/corvusHold/certify/internal/certificates/domain"
	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
	dsvc "github.com/corvusHold/certify/internal/delivery/service"
	evdomain "github.com/corvusHold/certify/internal/events/domain"
	"github.com/corvusHold/certify/internal/metrics"
	"github.com/corvusHold/certify/internal/platform/validation"
	"github.com/corvusHold/certify/internal/records"
	"github.com/corvusHold/certify/internal/render"
	"github.com/corvusHold/certify/internal/storage"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
	tokdomain "github.com/corvusHold/certify/internal/tokens/domain"
)

const (
	maxIdentifierAttempts = 3

	ReasonInsufficientTokens = "insufficient tokens"
)

// Renderer rasterizes one record with an already allocated identifier.
type Renderer interface {
	Render(ctx context.Context, tpl tdomain.Template, rec records.Record, uniqueIdentifier string) (render.Output, error)
}

// Quota is the up-front token check.
type Quota interface {
	Check(ctx context.Context, userID uuid.UUID, required int) error
}

// Composer turns a stored certificate into a delivery job.
type Composer interface {
	Compose(ctx context.Context, in dsvc.ComposeInput) (ddomain.Job, error)
}

type Deps struct {
	Repo        domain.Repository
	Quota       Quota
	Renderer    Renderer
	Store       storage.Store
	Queue       ddomain.Enqueuer
	Composer    Composer
	Identifiers Identifiers
	Publisher   evdomain.Publisher
	// Concurrency bounds the records rendered in parallel per batch.
	Concurrency int
	Log         zerolog.Logger
}

// Orchestrator runs the generation pipeline: allocate identifier, render,
// upload, persist with token debit, enqueue delivery.
type Orchestrator struct {
	Deps
	now func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Identifiers == nil {
		d.Identifiers = UUIDIdentifiers{}
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	return &Orchestrator{Deps: d, now: time.Now}
}

// BatchInput is a validated table ready for generation.
type BatchInput struct {
	CreatorID     uuid.UUID
	Name          string
	Template      tdomain.Template
	Records       []records.Row
	InvalidEmails []records.InvalidEmail
	TotalRows     int
	CC            []string
	BCC           []string
}

type BatchResult struct {
	Batch        domain.Batch         `json:"batch"`
	Certificates []domain.Certificate `json:"certificates"`
	Outcomes     []domain.Outcome     `json:"-"`
}

// recordError is a failure confined to one record.
type recordError struct {
	reason string
	label  string
	err    error
}

func (e *recordError) Error() string { return e.reason }
func (e *recordError) Unwrap() error { return e.err }

// RunBatch generates a certificate for every record. The token check happens
// first and rejects the whole batch without side effects. After that, record
// failures are stored as FailedCertificates and the batch continues; storage
// or database failures stop the batch and are returned, keeping what was
// already created.
func (o *Orchestrator) RunBatch(ctx context.Context, in BatchInput) (BatchResult, error) {
	if err := o.Quota.Check(ctx, in.CreatorID, len(in.Records)); err != nil {
		return BatchResult{}, err
	}
	// A started batch runs to completion even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	b := domain.Batch{
		ID:         uuid.New(),
		Name:       in.Name,
		CreatorID:  in.CreatorID,
		TemplateID: in.Template.ID,
		Status:     domain.BatchRunning,
		CreatedAt:  o.now().UTC(),
		Progress:   domain.Progress{Total: in.TotalRows, InvalidEmails: len(in.InvalidEmails)},
	}
	log := o.Log.With().Str("batch_id", b.ID.String()).Str("template_id", b.TemplateID.String()).Logger()
	if err := o.Repo.CreateBatch(ctx, b); err != nil {
		return BatchResult{}, fmt.Errorf("create batch: %w", err)
	}
	if err := o.Repo.RecordInvalidEmails(ctx, b.ID, invalidRows(b.ID, in.InvalidEmails)); err != nil {
		return BatchResult{}, o.abort(ctx, log, b, fmt.Errorf("record invalid emails: %w", err))
	}

	outcomes := make([]domain.Outcome, len(in.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i, row := range in.Records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := o.processRow(gctx, log, b, in, row)
			if err != nil {
				return fmt.Errorf("row %d: %w", row.Number, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{Batch: b}, o.abort(ctx, log, b, err)
	}

	final, err := o.Repo.FinishBatch(ctx, b.ID, domain.BatchCompleted)
	if err != nil {
		return BatchResult{}, fmt.Errorf("finish batch: %w", err)
	}
	res := BatchResult{Batch: final, Outcomes: outcomes, Certificates: []domain.Certificate{}}
	for _, out := range outcomes {
		if out.OK() {
			res.Certificates = append(res.Certificates, *out.Certificate)
		}
	}
	o.publish(ctx, evdomain.Event{
		Type:   evdomain.TypeBatchCompleted,
		UserID: in.CreatorID,
		Meta: map[string]string{
			"batch_id":       final.ID.String(),
			"total":          strconv.Itoa(final.Progress.Total),
			"succeeded":      strconv.Itoa(final.Progress.Succeeded),
			"failed":         strconv.Itoa(final.Progress.Failed),
			"invalid_emails": strconv.Itoa(final.Progress.InvalidEmails),
		},
	})
	log.Info().
		Int("total", final.Progress.Total).
		Int("succeeded", final.Progress.Succeeded).
		Int("failed", final.Progress.Failed).
		Int("invalid_emails", final.Progress.InvalidEmails).
		Msg("batch completed")
	return res, nil
}

func (o *Orchestrator) abort(ctx context.Context, log zerolog.Logger, b domain.Batch, cause error) error {
	log.Error().Err(cause).Msg("batch aborted")
	if _, err := o.Repo.FinishBatch(ctx, b.ID, domain.BatchFailed); err != nil {
		log.Error().Err(err).Msg("mark batch failed")
	}
	return cause
}

func (o *Orchestrator) processRow(ctx context.Context, log zerolog.Logger, b domain.Batch, in BatchInput, row records.Row) (domain.Outcome, error) {
	rec := snapshot(in.Template, row.Values)
	batchID := b.ID
	cert, err := o.generate(ctx, in.Template, rec, in.CreatorID, &batchID, rec.Email(), in.CC, in.BCC)
	var re *recordError
	if errors.As(err, &re) {
		log.Warn().Err(re.err).Int("row", row.Number).Str("reason", re.label).Msg("certificate generation failed for record")
		metrics.IncCertificateFailure(re.label)
		f := domain.FailedCertificate{ID: uuid.New(), BatchID: b.ID, Row: row.Number, Data: rec, Reason: re.reason}
		if err := o.Repo.RecordFailure(ctx, f); err != nil {
			return domain.Outcome{}, fmt.Errorf("record failure: %w", err)
		}
		return domain.Outcome{Row: row.Number, Reason: re.reason}, nil
	}
	if err != nil {
		return domain.Outcome{}, err
	}
	metrics.IncCertificateGenerated("batch")
	return domain.Outcome{Row: row.Number, Certificate: &cert}, nil
}

// generate runs the per-certificate pipeline. Failures confined to the record
// come back as *recordError; anything else is an infrastructure error.
func (o *Orchestrator) generate(ctx context.Context, tpl tdomain.Template, rec records.Record, creatorID uuid.UUID, batchID *uuid.UUID, recipient string, cc, bcc []string) (domain.Certificate, error) {
	for attempt := 1; ; attempt++ {
		uid := o.Identifiers.Allocate()
		out, err := o.Renderer.Render(ctx, tpl, rec, uid)
		if err != nil {
			return domain.Certificate{}, &recordError{reason: err.Error(), label: "render", err: err}
		}

		key := storage.CertificateKey(o.now())
		if err := o.Store.Put(ctx, key, out.PNG, storage.ContentTypePNG); err != nil {
			return domain.Certificate{}, fmt.Errorf("upload certificate: %w", err)
		}
		url, err := o.Store.SignedURL(ctx, key)
		if err != nil {
			return domain.Certificate{}, fmt.Errorf("sign certificate url: %w", err)
		}

		cert := domain.Certificate{
			ID:                uuid.New(),
			TemplateID:        tpl.ID,
			BatchID:           batchID,
			UniqueIdentifier:  uid,
			Data:              rec,
			RecipientEmail:    recipient,
			ImageKey:          key,
			GeneratedImageURL: url,
			CreatorID:         creatorID,
			CreatedAt:         o.now().UTC(),
		}
		err = o.Repo.CreateCertificate(ctx, cert)
		if err != nil {
			o.discard(ctx, key)
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrDuplicateIdentifier) && attempt < maxIdentifierAttempts:
			o.Log.Warn().Str("unique_identifier", uid).Msg("identifier collision; allocating again")
			continue
		case errors.Is(err, tokdomain.ErrInsufficientTokens):
			return domain.Certificate{}, &recordError{reason: ReasonInsufficientTokens, label: "insufficient_tokens", err: err}
		default:
			return domain.Certificate{}, fmt.Errorf("persist certificate: %w", err)
		}
		metrics.AddTokensDebited(1)

		if recipient != "" {
			o.enqueue(ctx, cert, rec, cc, bcc)
		}
		return cert, nil
	}
}

// discard removes an uploaded image whose certificate was never persisted.
func (o *Orchestrator) discard(ctx context.Context, key string) {
	if err := o.Store.Delete(ctx, key); err != nil {
		o.Log.Warn().Err(err).Str("image_key", key).Msg("remove orphaned certificate image")
	}
}

// enqueue hands the certificate to the delivery queue. Delivery problems are
// the queue's concern; a failed enqueue is logged and the certificate stands.
func (o *Orchestrator) enqueue(ctx context.Context, cert domain.Certificate, rec records.Record, cc, bcc []string) {
	if o.Queue == nil || o.Composer == nil {
		return
	}
	job, err := o.Composer.Compose(ctx, dsvc.ComposeInput{
		CertificateID:  cert.ID,
		CreatorID:      cert.CreatorID,
		Record:         rec,
		RecipientEmail: cert.RecipientEmail,
		CertificateURL: cert.GeneratedImageURL,
		CC:             cc,
		BCC:            bcc,
	})
	if err == nil {
		err = o.Queue.Enqueue(ctx, job)
	}
	if err != nil {
		metrics.IncDeliveryAttempt("enqueue_failed")
		o.Log.Error().Err(err).Str("certificate_id", cert.ID.String()).Msg("enqueue certificate email")
	}
}

// SingleInput is one certificate requested through the external API.
type SingleInput struct {
	CreatorID    uuid.UUID
	TemplateID   uuid.UUID
	Placeholders map[string]string
	Email        string
}

// GenerateOne is the API path: every placeholder must be supplied, the
// recipient address must be valid and one token must be available.
func (o *Orchestrator) GenerateOne(ctx context.Context, tpl tdomain.Template, in SingleInput) (domain.Certificate, error) {
	rec := records.Record(in.Placeholders).Clone()
	if missing := records.MissingPlaceholders(tpl.PlaceholderNames(), rec); len(missing) > 0 {
		return domain.Certificate{}, &domain.MissingPlaceholdersError{Missing: missing}
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if !validation.IsEmail(email) {
			return domain.Certificate{}, domain.ErrInvalidEmail
		}
		if _, ok := rec.Lookup(records.EmailColumn); !ok {
			rec[records.EmailColumn] = email
		}
	}
	if err := o.Quota.Check(ctx, in.CreatorID, 1); err != nil {
		return domain.Certificate{}, err
	}

	cert, err := o.generate(ctx, tpl, rec, in.CreatorID, nil, email, nil, nil)
	var re *recordError
	if errors.As(err, &re) {
		metrics.IncCertificateFailure(re.label)
		return domain.Certificate{}, re.err
	}
	if err != nil {
		return domain.Certificate{}, err
	}
	metrics.IncCertificateGenerated("api")
	o.publish(ctx, evdomain.Event{
		Type:   evdomain.TypeCertificateGenerated,
		UserID: in.CreatorID,
		Meta:   map[string]string{"certificate_id": cert.ID.String(), "template_id": tpl.ID.String()},
	})
	return cert, nil
}

func (o *Orchestrator) publish(ctx context.Context, e evdomain.Event) {
	if o.Publisher == nil {
		return
	}
	e.Time = o.now()
	_ = o.Publisher.Publish(ctx, e)
}

// snapshot copies the row and gives every template placeholder a value so
// stored certificate data always covers the template. Missing columns render
// empty.
func snapshot(tpl tdomain.Template, values records.Record) records.Record {
	rec := values.Clone()
	for _, name := range records.MissingPlaceholders(tpl.PlaceholderNames(), rec) {
		rec[name] = ""
	}
	return rec
}

func invalidRows(batchID uuid.UUID, in []records.InvalidEmail) []domain.InvalidEmail {
	out := make([]domain.InvalidEmail, 0, len(in))
	for _, ie := range in {
		out = append(out, domain.InvalidEmail{ID: uuid.New(), BatchID: batchID, Row: ie.Row, Email: ie.Email, Reason: ie.Reason})
	}
	return out
}
