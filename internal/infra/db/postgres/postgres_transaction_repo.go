package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `id, provider_order_id, provider_payment_id, user_id, plan_id, provider, amount, currency, status, failure_reason, created_at, updated_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (
  id, provider_order_id, provider_payment_id, user_id, plan_id, provider, amount, currency, status, failure_reason, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  provider_order_id=$2, provider_payment_id=$3, status=$9, failure_reason=$10, updated_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.ProviderOrderID, t.ProviderPaymentID, t.UserID, t.PlanID, t.Provider, t.Amount, t.Currency, t.Status, t.FailureReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider_order_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

// UpdateStatusIfPending is the compare-and-set every completion path relies
// on: the WHERE clause makes terminal statuses sticky.
func (r *transactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, paymentID *string, reason string) (bool, error) {
	const q = `UPDATE transactions
SET status=$2, provider_payment_id=COALESCE($3, provider_payment_id), failure_reason=$4, updated_at=NOW()
WHERE id=$1 AND status='pending';`

	tag, err := execSQL(ctx, r.pool, tx, q, id, status, paymentID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ListPendingWithOrder(ctx context.Context, tx repository.Tx, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + transactionColumns + ` FROM transactions
WHERE status='pending' AND provider_order_id IS NOT NULL
ORDER BY created_at ASC LIMIT $1;`

	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionRepo) FindRecentCompletedDirect(ctx context.Context, tx repository.Tx, userID, planID string, since time.Time) (*model.Transaction, error) {
	const q = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id=$1 AND plan_id=$2 AND status='completed' AND provider_order_id IS NULL AND created_at >= $3
ORDER BY created_at DESC LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, userID, planID, since)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	err := row.Scan(&t.ID, &t.ProviderOrderID, &t.ProviderPaymentID, &t.UserID, &t.PlanID, &t.Provider, &t.Amount, &t.Currency, &t.Status, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}
