package repository

import (
	"context"
	"time"

	"promptmarket-payments/internal/domain/model"
)

// SubscriptionRepository is the port for entitlements.
type SubscriptionRepository interface {
	// CreateIfAbsent inserts the subscription unless one already references the
	// same transaction id, returning whether the insert happened. Callers treat
	// false as "already entitled" and no-op.
	CreateIfAbsent(ctx context.Context, tx Tx, sub *model.Subscription) (bool, error)

	FindActiveByUserAndPlan(ctx context.Context, tx Tx, userID, planID string) (*model.Subscription, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Subscription, error)

	// CancelActive marks the active (user, plan) row cancelled, if any.
	CancelActive(ctx context.Context, tx Tx, userID, planID string) error

	// ExpireDue flips active rows whose end_date has passed to expired and
	// returns how many were flipped. Used by the scheduler.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) (int, error)
}
