package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const (
	selectBalance = `SELECT token_balance FROM users WHERE id = $1`
	creditBalance = `UPDATE users SET token_balance = token_balance + $2 WHERE id = $1 RETURNING token_balance`
	debitBalance  = `
UPDATE users SET token_balance = token_balance - $2
WHERE id = $1 AND token_balance >= $2
RETURNING token_balance`
	insertTransaction = `
INSERT INTO token_transactions (id, user_id, amount, type, reason)
VALUES ($1, $2, $3, $4, $5)`
	listTransactions = `
SELECT id, user_id, amount, type, reason, created_at
FROM token_transactions WHERE user_id = $1
ORDER BY created_at DESC LIMIT $2`
)

func (r *PGRepository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var b int
	err := r.pg.QueryRow(ctx, selectBalance, userID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, udomain.ErrNotFound
	}
	return b, err
}

func (r *PGRepository) Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	var balance int
	err := pgx.BeginFunc(ctx, r.pg, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, creditBalance, userID, amount).Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return udomain.ErrNotFound
			}
			return err
		}
		_, err := tx.Exec(ctx, insertTransaction, uuid.New(), userID, amount, tdomain.TypeAdd, reason)
		return err
	})
	return balance, err
}

// DebitTx removes amount from the user's balance inside tx and writes the
// DEDUCT ledger row. The conditional UPDATE keeps the balance non-negative
// under concurrent debits; when it matches nothing the caller gets an
// *InsufficientError and must roll back.
func DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, reason string) (int, error) {
	var balance int
	err := tx.QueryRow(ctx, debitBalance, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var available int
		if err := tx.QueryRow(ctx, selectBalance, userID).Scan(&available); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		return 0, &tdomain.InsufficientError{Required: amount, Available: available}
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, insertTransaction, uuid.New(), userID, amount, tdomain.TypeDeduct, reason); err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *PGRepository) History(ctx context.Context, userID uuid.UUID, limit int) ([]tdomain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pg.Query(ctx, listTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tdomain.Transaction, error) {
		var t tdomain.Transaction
		err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Reason, &t.CreatedAt)
		return t, err
	})
}
