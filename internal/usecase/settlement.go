package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
)

// SettlementService is the single write path that turns a pending transaction
// into a durable entitlement. The callback poller, the webhook handler and the
// recovery sweeper all converge here, so the conditional-write discipline
// lives in exactly one place.
type SettlementService struct {
	transactions repository.TransactionRepository
	subs         repository.SubscriptionRepository
	plans        repository.PlanRepository
	tm           repository.TransactionManager
	log          *zerolog.Logger
}

func NewSettlementService(
	transactions repository.TransactionRepository,
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *SettlementService {
	return &SettlementService{transactions: transactions, subs: subs, plans: plans, tm: tm, log: logger}
}

// Complete marks the transaction completed (if still pending) and grants the
// subscription (if none references this transaction yet). Both writes are
// conditional, so concurrent webhook/sweeper delivery for the same charge is
// safe: whoever gets there first wins, everyone else no-ops.
//
// Returns the entitlement and whether this call created it.
func (s *SettlementService) Complete(ctx context.Context, t *model.Transaction, paymentID string) (*model.Subscription, bool, error) {
	plan, err := s.plans.FindByID(ctx, nil, t.PlanID)
	if err != nil {
		return nil, false, fmt.Errorf("settlement: load plan %s: %w", t.PlanID, err)
	}

	var pid *string
	if paymentID != "" {
		pid = &paymentID
	} else {
		pid = t.ProviderPaymentID
	}

	var granted *model.Subscription
	var created bool
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		transitioned, err := s.transactions.UpdateStatusIfPending(ctx, tx, t.ID, model.TransactionStatusCompleted, pid, "")
		if err != nil {
			return err
		}
		if transitioned {
			metrics.IncTransaction(string(model.TransactionStatusCompleted))
		} else {
			// Someone else already drove it terminal; re-read and bail out of
			// the grant if the winner's status was negative.
			cur, err := s.transactions.FindByID(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.TransactionStatusCompleted {
				return fmt.Errorf("settlement: transaction %s already %s: %w", t.ID, cur.Status, errTerminalLoss)
			}
		}

		t.Status = model.TransactionStatusCompleted
		if pid != nil {
			t.ProviderPaymentID = pid
		}

		// At most one active row per (user, plan). A re-purchase supersedes the
		// previous entitlement instead of stacking a second active one.
		active, err := s.subs.FindActiveByUserAndPlan(ctx, tx, t.UserID, t.PlanID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if active != nil && (active.TransactionID == nil || *active.TransactionID != t.ID) {
			if err := s.subs.CancelActive(ctx, tx, t.UserID, t.PlanID); err != nil {
				return err
			}
			s.log.Info().
				Str("transaction_id", t.ID).
				Str("superseded_subscription_id", active.ID).
				Msg("settlement: previous entitlement superseded")
		}

		sub, err := model.NewSubscription(uuid.NewString(), t, plan)
		if err != nil {
			return err
		}
		inserted, err := s.subs.CreateIfAbsent(ctx, tx, sub)
		if err != nil {
			return err
		}
		if inserted {
			granted = sub
			created = true
			metrics.IncSubscriptionGranted(t.Provider)
			return nil
		}
		existing, err := s.subs.FindByTransactionID(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		granted = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info().Str("transaction_id", t.ID).Str("subscription_id", granted.ID).Msg("settlement: entitlement granted")
	}
	return granted, created, nil
}

// Fail drives the transaction to a negative terminal status if it is still
// pending. The subscription store is never touched on this path.
func (s *SettlementService) Fail(ctx context.Context, id string, status model.TransactionStatus, reason string) (bool, error) {
	if !status.IsTerminal() || status == model.TransactionStatusCompleted {
		return false, fmt.Errorf("settlement: %q is not a failure status", status)
	}
	transitioned, err := s.transactions.UpdateStatusIfPending(ctx, nil, id, status, nil, reason)
	if err != nil {
		return false, err
	}
	if transitioned {
		metrics.IncTransaction(string(status))
		s.log.Info().Str("transaction_id", id).Str("status", string(status)).Str("reason", reason).Msg("settlement: transaction closed")
	}
	return transitioned, nil
}

// errTerminalLoss distinguishes "a negative status won the race" from plain
// storage failures.
var errTerminalLoss = errors.New("lost settlement race to a negative terminal status")
