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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, payment_method, payment_id, transaction_id, created_at`

// CreateIfAbsent leans on the unique index on transaction_id: a concurrent
// grant for the same transaction makes the insert a no-op instead of a second
// entitlement.
func (r *subscriptionRepo) CreateIfAbsent(ctx context.Context, tx repository.Tx, s *model.Subscription) (bool, error) {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, plan_id, status, start_date, end_date, payment_method, payment_id, transaction_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (transaction_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, s.Status, s.StartDate, s.EndDate, s.PaymentMethod, s.PaymentID, s.TransactionID, s.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) FindActiveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
WHERE user_id=$1 AND plan_id=$2 AND status='active'
ORDER BY created_at DESC LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, userID, planID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE transaction_id=$1 LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, transactionID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) CancelActive(ctx context.Context, tx repository.Tx, userID, planID string) error {
	const q = `UPDATE user_subscriptions SET status='cancelled' WHERE user_id=$1 AND plan_id=$2 AND status='active';`
	_, err := execSQL(ctx, r.pool, tx, q, userID, planID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `UPDATE user_subscriptions SET status='expired' WHERE status='active' AND end_date IS NOT NULL AND end_date < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.StartDate, &s.EndDate, &s.PaymentMethod, &s.PaymentID, &s.TransactionID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
