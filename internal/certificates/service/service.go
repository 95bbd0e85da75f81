package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/certificates/domain"
	"github.com/corvusHold/certify/internal/records"
	"github.com/corvusHold/certify/internal/storage"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

// Service is the certificate facade used by controllers.
type Service struct {
	orch      *Orchestrator
	repo      domain.Repository
	templates tdomain.Repository
	users     udomain.Repository
	store     storage.Store
}

func New(orch *Orchestrator, templates tdomain.Repository, users udomain.Repository) *Service {
	return &Service{orch: orch, repo: orch.Repo, templates: templates, users: users, store: orch.Store}
}

// StartBatchInput is an uploaded recipient table.
type StartBatchInput struct {
	CreatorID  uuid.UUID
	TemplateID uuid.UUID
	Name       string
	CSV        io.Reader
	CC         []string
	BCC        []string
}

// StartBatch validates the table against the template and runs the batch to
// completion. MissingColumns are placeholders that will render empty.
func (s *Service) StartBatch(ctx context.Context, in StartBatchInput) (BatchResult, []string, error) {
	tpl, err := s.template(ctx, in.CreatorID, in.TemplateID)
	if err != nil {
		return BatchResult{}, nil, err
	}
	v, err := records.Validate(in.CSV, tpl.PlaceholderNames())
	if err != nil {
		return BatchResult{}, nil, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
	}
	res, err := s.orch.RunBatch(ctx, BatchInput{
		CreatorID:     in.CreatorID,
		Name:          in.Name,
		Template:      tpl,
		Records:       v.ValidRecords,
		InvalidEmails: v.InvalidEmails,
		TotalRows:     v.TotalRows,
		CC:            in.CC,
		BCC:           in.BCC,
	})
	return res, v.MissingColumns, err
}

// Generate creates one certificate for the external API.
func (s *Service) Generate(ctx context.Context, in SingleInput) (domain.Certificate, error) {
	tpl, err := s.template(ctx, in.CreatorID, in.TemplateID)
	if err != nil {
		return domain.Certificate{}, err
	}
	return s.orch.GenerateOne(ctx, tpl, in)
}

// Batch returns a batch owned by creatorID.
func (s *Service) Batch(ctx context.Context, creatorID, batchID uuid.UUID) (domain.Batch, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	if b.CreatorID != creatorID {
		return domain.Batch{}, domain.ErrNotFound
	}
	return b, nil
}

type Failures struct {
	Failed        []domain.FailedCertificate `json:"failedCertificates"`
	InvalidEmails []domain.InvalidEmail      `json:"invalidEmails"`
}

// Failures lists the per-record problems of a batch.
func (s *Service) Failures(ctx context.Context, creatorID, batchID uuid.UUID) (Failures, error) {
	if _, err := s.Batch(ctx, creatorID, batchID); err != nil {
		return Failures{}, err
	}
	failed, err := s.repo.ListFailures(ctx, batchID)
	if err != nil {
		return Failures{}, err
	}
	invalid, err := s.repo.ListInvalidEmails(ctx, batchID)
	if err != nil {
		return Failures{}, err
	}
	if failed == nil {
		failed = []domain.FailedCertificate{}
	}
	if invalid == nil {
		invalid = []domain.InvalidEmail{}
	}
	return Failures{Failed: failed, InvalidEmails: invalid}, nil
}

// Validation is the public view of a certificate.
type Validation struct {
	Certificate domain.Certificate `json:"certificate"`
	Creator     udomain.Public     `json:"creator"`
	ImageURL    string             `json:"imageUrl"`
}

// Validate looks up a certificate by its public identifier. The image link
// is signed afresh since stored links expire.
func (s *Service) Validate(ctx context.Context, uid string) (Validation, error) {
	c, err := s.repo.GetByUniqueIdentifier(ctx, uid)
	if err != nil {
		return Validation{}, err
	}
	u, err := s.users.GetByID(ctx, c.CreatorID)
	if err != nil && !errors.Is(err, udomain.ErrNotFound) {
		return Validation{}, err
	}
	url := c.GeneratedImageURL
	if c.ImageKey != "" {
		if signed, err := s.store.SignedURL(ctx, c.ImageKey); err == nil {
			url = signed
		}
	}
	c.GeneratedImageURL = url
	return Validation{Certificate: c, Creator: u.Public(), ImageURL: url}, nil
}

func (s *Service) template(ctx context.Context, creatorID, templateID uuid.UUID) (tdomain.Template, error) {
	tpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return tdomain.Template{}, err
	}
	if tpl.CreatorID != creatorID {
		return tdomain.Template{}, tdomain.ErrNotFound
	}
	if err := tpl.Validate(); err != nil {
		return tdomain.Template{}, fmt.Errorf("%w: %v", domain.ErrInvalidTemplate, err)
	}
	return tpl, nil
}
