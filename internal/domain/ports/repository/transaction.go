package repository

import (
	"context"
	"time"

	"promptmarket-payments/internal/domain/model"
)

// TransactionRepository is the port for the durable checkout-attempt store.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Transaction, error)

	// UpdateStatusIfPending transitions the row to a terminal status only if it
	// is still pending, returning whether this caller won the transition. This
	// compare-and-set is the idempotency backbone shared by the callback
	// poller, the webhook handler and the recovery sweeper.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.TransactionStatus, paymentID *string, reason string) (bool, error)

	// ListPendingWithOrder returns pending transactions that have a provider
	// order id, oldest first, for the recovery sweep.
	ListPendingWithOrder(ctx context.Context, tx Tx, limit int) ([]*model.Transaction, error)

	// FindRecentCompletedDirect returns the latest completed transaction for
	// (user, plan) created after `since` that has no provider order id, which
	// is the discount/fee-waived checkout path.
	FindRecentCompletedDirect(ctx context.Context, tx Tx, userID, planID string, since time.Time) (*model.Transaction, error)
}
