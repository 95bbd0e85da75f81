package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvusHold/certify/internal/certificates/domain"
	"github.com/corvusHold/certify/internal/records"
	trepo "github.com/corvusHold/certify/internal/tokens/repository"
)

const uniqueViolation = "23505"

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const (
	insertBatch = `
INSERT INTO batches (id, name, creator_id, template_id, total_rows, invalid_email_count, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	insertInvalidEmail = `
INSERT INTO invalid_emails (id, batch_id, row_number, email, reason)
VALUES ($1, $2, $3, $4, $5)`
	insertCertificate = `
INSERT INTO certificates (id, template_id, batch_id, unique_identifier, data, recipient_email,
                          image_key, generated_image_url, creator_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	bumpSucceeded = `
UPDATE batches SET processed = processed + 1, succeeded = succeeded + 1 WHERE id = $1`
	insertFailure = `
INSERT INTO failed_certificates (id, batch_id, row_number, data, reason)
VALUES ($1, $2, $3, $4, $5)`
	bumpFailed = `
UPDATE batches SET processed = processed + 1, failed = failed + 1 WHERE id = $1`
	finishBatch = `
UPDATE batches SET status = $2, completed_at = now() WHERE id = $1`
	selectBatch = `
SELECT id, name, creator_id, template_id, status, total_rows, processed, succeeded, failed,
       invalid_email_count, created_at, completed_at
FROM batches WHERE id = $1`
	listFailures = `
SELECT id, batch_id, row_number, data, reason, created_at
FROM failed_certificates WHERE batch_id = $1 ORDER BY row_number`
	listInvalidEmails = `
SELECT id, batch_id, row_number, email, reason, created_at
FROM invalid_emails WHERE batch_id = $1 ORDER BY row_number`
	selectByUniqueIdentifier = `
SELECT id, template_id, batch_id, unique_identifier, data, recipient_email, image_key,
       generated_image_url, creator_id, created_at
FROM certificates WHERE unique_identifier = $1`
)

func (r *PGRepository) CreateBatch(ctx context.Context, b domain.Batch) error {
	_, err := r.pg.Exec(ctx, insertBatch, b.ID, b.Name, b.CreatorID, b.TemplateID,
		b.Progress.Total, b.Progress.InvalidEmails, b.Status, b.CreatedAt)
	return err
}

func (r *PGRepository) RecordInvalidEmails(ctx context.Context, batchID uuid.UUID, rows []domain.InvalidEmail) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ie := range rows {
		id := ie.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(insertInvalidEmail, id, batchID, ie.Row, ie.Email, ie.Reason)
	}
	return r.pg.SendBatch(ctx, batch).Close()
}

func (r *PGRepository) CreateCertificate(ctx context.Context, c domain.Certificate) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pg, func(tx pgx.Tx) error {
		if _, err := trepo.DebitTx(ctx, tx, c.CreatorID, 1, "certificate "+c.UniqueIdentifier); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertCertificate, c.ID, c.TemplateID, c.BatchID, c.UniqueIdentifier, data,
			c.RecipientEmail, c.ImageKey, c.GeneratedImageURL, c.CreatorID, c.CreatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "certificates_unique_identifier_key" {
			return domain.ErrDuplicateIdentifier
		}
		if err != nil {
			return err
		}
		if c.BatchID != nil {
			if _, err := tx.Exec(ctx, bumpSucceeded, *c.BatchID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) RecordFailure(ctx context.Context, f domain.FailedCertificate) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return pgx.BeginFunc(ctx, r.pg, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertFailure, f.ID, f.BatchID, f.Row, data, f.Reason); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, bumpFailed, f.BatchID)
		return err
	})
}

func (r *PGRepository) FinishBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus) (domain.Batch, error) {
	if _, err := r.pg.Exec(ctx, finishBatch, batchID, status); err != nil {
		return domain.Batch{}, err
	}
	return r.GetBatch(ctx, batchID)
}

func (r *PGRepository) GetBatch(ctx context.Context, id uuid.UUID) (domain.Batch, error) {
	var b domain.Batch
	err := r.pg.QueryRow(ctx, selectBatch, id).Scan(
		&b.ID, &b.Name, &b.CreatorID, &b.TemplateID, &b.Status,
		&b.Progress.Total, &b.Progress.Processed, &b.Progress.Succeeded, &b.Progress.Failed,
		&b.Progress.InvalidEmails, &b.CreatedAt, &b.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Batch{}, domain.ErrNotFound
	}
	return b, err
}

func (r *PGRepository) ListFailures(ctx context.Context, batchID uuid.UUID) ([]domain.FailedCertificate, error) {
	rows, err := r.pg.Query(ctx, listFailures, batchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FailedCertificate, error) {
		var (
			f    domain.FailedCertificate
			data []byte
		)
		if err := row.Scan(&f.ID, &f.BatchID, &f.Row, &data, &f.Reason, &f.CreatedAt); err != nil {
			return f, err
		}
		rec, err := decodeRecord(data)
		f.Data = rec
		return f, err
	})
}

func (r *PGRepository) ListInvalidEmails(ctx context.Context, batchID uuid.UUID) ([]domain.InvalidEmail, error) {
	rows, err := r.pg.Query(ctx, listInvalidEmails, batchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.InvalidEmail, error) {
		var ie domain.InvalidEmail
		err := row.Scan(&ie.ID, &ie.BatchID, &ie.Row, &ie.Email, &ie.Reason, &ie.CreatedAt)
		return ie, err
	})
}

func (r *PGRepository) GetByUniqueIdentifier(ctx context.Context, uid string) (domain.Certificate, error) {
	var (
		c    domain.Certificate
		data []byte
	)
	err := r.pg.QueryRow(ctx, selectByUniqueIdentifier, uid).Scan(
		&c.ID, &c.TemplateID, &c.BatchID, &c.UniqueIdentifier, &data, &c.RecipientEmail,
		&c.ImageKey, &c.GeneratedImageURL, &c.CreatorID, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Certificate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Certificate{}, err
	}
	if c.Data, err = decodeRecord(data); err != nil {
		return domain.Certificate{}, fmt.Errorf("certificate %s data: %w", uid, err)
	}
	return c, nil
}

func decodeRecord(b []byte) (records.Record, error) {
	var rec records.Record
	if len(b) > 0 {
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, err
		}
	}
	if rec == nil {
		rec = records.Record{}
	}
	return rec, nil
}
