// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
)

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookEvent is a provider notification after signature verification and
// status normalization. The HTTP layer owns both; this use case never sees
// provider-specific shapes.
type WebhookEvent struct {
	OrderID  string // provider order/charge id
	Provider string
	Status   adapter.ChargeStatus
	// Raw provider status, kept for the no-op log on unknown vocabulary.
	RawStatus string
	PaymentID string
	Amount    int64
	Currency  string
	Reason    string
	UserID    string // from provider metadata
	PlanID    string // from provider metadata
}

// WebhookResult says what processing did, so the HTTP layer can always answer
// 2xx once the event is durably recorded.
type WebhookResult string

const (
	WebhookCompleted WebhookResult = "completed"
	WebhookClosed    WebhookResult = "closed" // negative terminal recorded
	WebhookNoop      WebhookResult = "noop"   // duplicate or unknown status
)

type WebhookUseCase interface {
	Process(ctx context.Context, ev WebhookEvent) (WebhookResult, error)
}

type webhookUC struct {
	transactions repository.TransactionRepository
	settler      *SettlementService
	log          *zerolog.Logger
}

func NewWebhookUseCase(transactions repository.TransactionRepository, settler *SettlementService, logger *zerolog.Logger) *webhookUC {
	return &webhookUC{transactions: transactions, settler: settler, log: logger}
}

// Process is idempotent: replaying the same event leaves the stores exactly as
// the first delivery did. Gateways retry webhook delivery, and it may race the
// callback poller and the recovery sweep for the same charge; every mutation
// is conditional on the row still being pending.
func (u *webhookUC) Process(ctx context.Context, ev WebhookEvent) (WebhookResult, error) {
	if ev.OrderID == "" {
		return WebhookNoop, domain.ErrInvalidArgument
	}

	t, err := u.transactions.FindByOrderID(ctx, nil, ev.OrderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return WebhookNoop, err
	}

	// Webhook-first arrival: the buyer never came back from the redirect, so
	// no transaction row exists yet. Create it pending before acting.
	if t == nil {
		if ev.UserID == "" || ev.PlanID == "" {
			u.log.Error().Str("order_id", ev.OrderID).Msg("webhook: unknown order and no metadata to create it")
			return WebhookNoop, domain.ErrInvalidArgument
		}
		now := time.Now()
		orderID := ev.OrderID
		t = &model.Transaction{
			ID:              ulid.Make().String(),
			ProviderOrderID: &orderID,
			UserID:          ev.UserID,
			PlanID:          ev.PlanID,
			Provider:        ev.Provider,
			Amount:          ev.Amount,
			Currency:        ev.Currency,
			Status:          model.TransactionStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := u.transactions.Save(ctx, nil, t); err != nil {
			// A concurrent delivery may have inserted it first; re-read.
			existing, ferr := u.transactions.FindByOrderID(ctx, nil, ev.OrderID)
			if ferr != nil || existing == nil {
				return WebhookNoop, err
			}
			t = existing
		}
	}

	switch ev.Status {
	case adapter.ChargeStatusCompleted:
		_, created, err := u.settler.Complete(ctx, t, ev.PaymentID)
		if err != nil {
			if errors.Is(err, errTerminalLoss) {
				// A negative status was recorded first; sticky, do not revive.
				metrics.IncWebhookEvent(ev.Provider, "noop")
				return WebhookNoop, nil
			}
			metrics.IncWebhookEvent(ev.Provider, "error")
			return WebhookNoop, err
		}
		if created {
			metrics.IncWebhookEvent(ev.Provider, "completed")
			return WebhookCompleted, nil
		}
		metrics.IncWebhookEvent(ev.Provider, "noop")
		return WebhookNoop, nil

	case adapter.ChargeStatusDeclined, adapter.ChargeStatusFailed, adapter.ChargeStatusVoided:
		return u.close(ctx, ev, t, model.TransactionStatusFailed)
	case adapter.ChargeStatusCancelled:
		return u.close(ctx, ev, t, model.TransactionStatusCancelled)

	case adapter.ChargeStatusPending, adapter.ChargeStatusApproved:
		// Not terminal yet; nothing to record.
		metrics.IncWebhookEvent(ev.Provider, "noop")
		return WebhookNoop, nil

	default:
		// Forward compatibility: new provider vocabulary is logged, not erred.
		u.log.Warn().Str("order_id", ev.OrderID).Str("status", ev.RawStatus).Msg("webhook: unsupported status, ignoring")
		metrics.IncWebhookEvent(ev.Provider, "unknown")
		return WebhookNoop, nil
	}
}

func (u *webhookUC) close(ctx context.Context, ev WebhookEvent, t *model.Transaction, status model.TransactionStatus) (WebhookResult, error) {
	reason := ev.Reason
	if reason == "" {
		reason = "provider reported " + ev.RawStatus
	}
	transitioned, err := u.settler.Fail(ctx, t.ID, status, reason)
	if err != nil {
		metrics.IncWebhookEvent(ev.Provider, "error")
		return WebhookNoop, err
	}
	if transitioned {
		metrics.IncWebhookEvent(ev.Provider, "closed")
		return WebhookClosed, nil
	}
	metrics.IncWebhookEvent(ev.Provider, "noop")
	return WebhookNoop, nil
}
