package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/certify/internal/certificates/domain"
	"github.com/corvusHold/certify/internal/config"
	"github.com/corvusHold/certify/internal/delivery/queue"
	dsvc "github.com/corvusHold/certify/internal/delivery/service"
	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/render"
	"github.com/corvusHold/certify/internal/storage"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
	tokdomain "github.com/corvusHold/certify/internal/tokens/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

const bgURL = "https://assets.example.com/bg.png"

type mapLoader map[string]image.Image

func (m mapLoader) Load(_ context.Context, url string) (image.Image, error) {
	img, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: 404 Not Found", url)
	}
	return img, nil
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// memRepo mirrors the Postgres repository: balance, certificates and batch
// counters change together or not at all.
type memRepo struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	batches  map[uuid.UUID]*domain.Batch
	certs    map[string]domain.Certificate
	failures []domain.FailedCertificate
	invalid  []domain.InvalidEmail
	ledger   []tokdomain.Transaction
}

func newMemRepo() *memRepo {
	return &memRepo{
		balances: map[uuid.UUID]int{},
		batches:  map[uuid.UUID]*domain.Batch{},
		certs:    map[string]domain.Certificate{},
	}
}

func (r *memRepo) Balance(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[userID]
	if !ok {
		return 0, udomain.ErrNotFound
	}
	return b, nil
}

// Check implements Quota over the same balances.
func (r *memRepo) Check(ctx context.Context, userID uuid.UUID, required int) error {
	b, err := r.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if b < required {
		return &tokdomain.InsufficientError{Required: required, Available: b}
	}
	return nil
}

func (r *memRepo) CreateBatch(_ context.Context, b domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = &b
	return nil
}

func (r *memRepo) RecordInvalidEmails(_ context.Context, _ uuid.UUID, rows []domain.InvalidEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid = append(r.invalid, rows...)
	return nil
}

func (r *memRepo) CreateCertificate(_ context.Context, c domain.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances[c.CreatorID] < 1 {
		return &tokdomain.InsufficientError{Required: 1, Available: r.balances[c.CreatorID]}
	}
	if _, dup := r.certs[c.UniqueIdentifier]; dup {
		return domain.ErrDuplicateIdentifier
	}
	r.balances[c.CreatorID]--
	r.ledger = append(r.ledger, tokdomain.Transaction{ID: uuid.New(), UserID: c.CreatorID, Amount: 1, Type: tokdomain.TypeDeduct})
	r.certs[c.UniqueIdentifier] = c
	if c.BatchID != nil {
		b := r.batches[*c.BatchID]
		b.Progress.Processed++
		b.Progress.Succeeded++
	}
	return nil
}

func (r *memRepo) RecordFailure(_ context.Context, f domain.FailedCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	b := r.batches[f.BatchID]
	b.Progress.Processed++
	b.Progress.Failed++
	return nil
}

func (r *memRepo) FinishBatch(_ context.Context, id uuid.UUID, status domain.BatchStatus) (domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	now := time.Now()
	b.Status = status
	b.CompletedAt = &now
	return *b, nil
}

func (r *memRepo) GetBatch(_ context.Context, id uuid.UUID) (domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return *b, nil
}

func (r *memRepo) ListFailures(_ context.Context, id uuid.UUID) ([]domain.FailedCertificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FailedCertificate
	for _, f := range r.failures {
		if f.BatchID == id {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memRepo) ListInvalidEmails(_ context.Context, id uuid.UUID) ([]domain.InvalidEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.InvalidEmail
	for _, ie := range r.invalid {
		if ie.BatchID == id {
			out = append(out, ie)
		}
	}
	return out, nil
}

func (r *memRepo) GetByUniqueIdentifier(_ context.Context, uid string) (domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[uid]
	if !ok {
		return domain.Certificate{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) certCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.certs)
}

type templateRepo map[uuid.UUID]tdomain.Template

func (m templateRepo) GetByID(_ context.Context, id uuid.UUID) (tdomain.Template, error) {
	t, ok := m[id]
	if !ok {
		return tdomain.Template{}, tdomain.ErrNotFound
	}
	return t, nil
}

type userRepo map[uuid.UUID]udomain.User

func (m userRepo) GetByID(_ context.Context, id uuid.UUID) (udomain.User, error) {
	u, ok := m[id]
	if !ok {
		return udomain.User{}, udomain.ErrNotFound
	}
	return u, nil
}

type noSettings struct{}

func (noSettings) GetString(_ context.Context, _ string, _ *uuid.UUID, def string) (string, error) {
	return def, nil
}

func (noSettings) GetDuration(_ context.Context, _ string, _ *uuid.UUID, def time.Duration) (time.Duration, error) {
	return def, nil
}

func (noSettings) GetInt(_ context.Context, _ string, _ *uuid.UUID, def int) (int, error) {
	return def, nil
}

type failingStore struct{ storage.Store }

func (failingStore) Put(context.Context, string, []byte, string) error {
	return errors.New("s3: connection refused")
}

// scriptedIDs hands out the given identifiers first, then random ones.
type scriptedIDs struct {
	mu   sync.Mutex
	next []string
}

func (s *scriptedIDs) Allocate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.next) > 0 {
		id := s.next[0]
		s.next = s.next[1:]
		return id
	}
	return uuid.NewString()
}

type harness struct {
	repo      *memRepo
	store     *storage.MemoryStore
	queue     *queue.Memory
	templates templateRepo
	users     userRepo
	orch      *Orchestrator
	svc       *Service
	creator   uuid.UUID
	tpl       tdomain.Template
}

func newHarness(t *testing.T, balance int, images mapLoader) *harness {
	t.Helper()
	h := &harness{
		repo:      newMemRepo(),
		store:     storage.NewMemoryStore(time.Hour),
		queue:     queue.NewMemory(64),
		templates: templateRepo{},
		users:     userRepo{},
		creator:   uuid.New(),
	}
	t.Cleanup(func() { _ = h.queue.Close() })
	h.repo.balances[h.creator] = balance
	h.users[h.creator] = udomain.User{ID: h.creator, Name: "Ada", Organization: "Analytical Academy", Email: "ada@academy.dev"}
	h.tpl = tdomain.Template{
		ID:        uuid.New(),
		CreatorID: h.creator,
		Name:      "Completion",
		ImageURL:  bgURL,
		Placeholders: []tdomain.Placeholder{
			{ID: "p1", Name: "Name", Position: tdomain.Position{X: 400, Y: 200}, Style: tdomain.TextStyle{FontSize: 32, TextAlign: "center"}},
			{ID: "p2", Name: "Course", Position: tdomain.Position{X: 400, Y: 260}, Style: tdomain.TextStyle{FontSize: 24, TextAlign: "center"}},
		},
	}
	h.templates[h.tpl.ID] = h.tpl

	fonts, err := render.NewFontSource(render.NewHTTPFetcher(0), logger.Nop())
	require.NoError(t, err)
	cfg := config.Config{PublicBaseURL: "https://certs.example.com", EmailFrom: "no-reply@certify.dev"}
	h.orch = NewOrchestrator(Deps{
		Repo:        h.repo,
		Quota:       h.repo,
		Renderer:    render.New(images, fonts, cfg.ValidationURL, logger.Nop()),
		Store:       h.store,
		Queue:       h.queue,
		Composer:    dsvc.NewComposer(noSettings{}, cfg),
		Concurrency: 4,
		Log:         logger.Nop(),
	})
	h.svc = New(h.orch, h.templates, h.users)
	return h
}

func (h *harness) saveTemplate(tpl tdomain.Template) tdomain.Template {
	tpl.CreatorID = h.creator
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	h.templates[tpl.ID] = tpl
	return tpl
}

// drain reads the jobs currently queued without blocking.
func (h *harness) drain(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.queue.Consume(ctx)
	require.NoError(t, err)
	var to []string
	for {
		select {
		case d := <-ch:
			to = append(to, d.Job.RecipientEmail)
			_ = d.Ack()
		case <-time.After(50 * time.Millisecond):
			return to
		}
	}
}
