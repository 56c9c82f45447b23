// File: internal/usecase/sweeper_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
	"promptmarket-payments/internal/infra/worker"
)

var _ SweeperUseCase = (*sweeperUC)(nil)

// SweepDetail records what happened to one stuck transaction.
type SweepDetail struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Outcome       string `json:"outcome"` // captured|failed|expired|skipped|error
	Note          string `json:"note,omitempty"`
}

// SweepSummary is the operator-facing report of one sweep.
type SweepSummary struct {
	Processed int           `json:"processed"`
	Captured  int           `json:"captured"`
	Failed    int           `json:"failed"`
	Expired   int           `json:"expired"`
	Skipped   int           `json:"skipped"`
	Details   []SweepDetail `json:"details"`
}

type SweeperUseCase interface {
	// Sweep re-queries the gateway for every pending transaction that has a
	// provider order id and drives each to a terminal state where possible.
	// One transaction's failure never aborts the rest of the batch.
	Sweep(ctx context.Context) (*SweepSummary, error)
}

// SweeperOptions tune the sweep. StaleAfter bounds how long a transaction the
// gateway still reports pending may stay undecided before it is expired.
type SweeperOptions struct {
	BatchSize   int
	Concurrency int
	StaleAfter  time.Duration
}

func (o *SweeperOptions) fill() {
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 24 * time.Hour
	}
}

type sweeperUC struct {
	transactions repository.TransactionRepository
	gateways     map[string]adapter.PaymentGateway
	settler      *SettlementService
	opts         SweeperOptions
	now          func() time.Time
	log          *zerolog.Logger
}

func NewSweeperUseCase(
	transactions repository.TransactionRepository,
	gateways map[string]adapter.PaymentGateway,
	settler *SettlementService,
	opts SweeperOptions,
	logger *zerolog.Logger,
) *sweeperUC {
	opts.fill()
	return &sweeperUC{
		transactions: transactions,
		gateways:     gateways,
		settler:      settler,
		opts:         opts,
		now:          time.Now,
		log:          logger,
	}
}

func (u *sweeperUC) Sweep(ctx context.Context) (*SweepSummary, error) {
	pending, err := u.transactions.ListPendingWithOrder(ctx, nil, u.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("sweep: list pending: %w", err)
	}

	summary := &SweepSummary{Details: make([]SweepDetail, 0, len(pending))}
	var mu sync.Mutex

	pool := worker.NewPool(u.opts.Concurrency, u.log)
	pool.Start(ctx)
	defer pool.Stop()

	var wg sync.WaitGroup
	for _, t := range pending {
		t := t
		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()
			detail := u.sweepOne(ctx, t)
			mu.Lock()
			summary.Processed++
			switch detail.Outcome {
			case "captured":
				summary.Captured++
			case "failed":
				summary.Failed++
			case "expired":
				summary.Expired++
			default:
				summary.Skipped++
			}
			summary.Details = append(summary.Details, detail)
			mu.Unlock()
			metrics.IncSweepOutcome(detail.Outcome)
			return nil
		}
		if err := pool.Submit(task); err != nil {
			// Queue saturated; run inline rather than dropping the item.
			_ = task(ctx)
		}
	}
	wg.Wait()

	u.log.Info().
		Int("processed", summary.Processed).
		Int("captured", summary.Captured).
		Int("failed", summary.Failed).
		Int("expired", summary.Expired).
		Int("skipped", summary.Skipped).
		Msg("sweep finished")
	return summary, nil
}

// sweepOne drives a single stuck transaction. Panics and errors are confined
// to this item's detail record.
func (u *sweeperUC) sweepOne(ctx context.Context, t *model.Transaction) (detail SweepDetail) {
	detail = SweepDetail{TransactionID: t.ID}
	if t.ProviderOrderID != nil {
		detail.OrderID = *t.ProviderOrderID
	}
	defer func() {
		if r := recover(); r != nil {
			detail.Outcome = "error"
			detail.Note = fmt.Sprintf("panic: %v", r)
			u.log.Error().Str("transaction_id", t.ID).Interface("panic", r).Msg("sweep: item panicked")
		}
	}()

	gw, ok := u.gateways[t.Provider]
	if !ok {
		detail.Outcome = "skipped"
		detail.Note = "no gateway configured for " + t.Provider
		return detail
	}

	res, err := gw.QueryOrder(ctx, detail.OrderID)
	if err != nil {
		detail.Outcome = "error"
		detail.Note = "status query: " + err.Error()
		u.log.Warn().Err(err).Str("transaction_id", t.ID).Str("order_id", detail.OrderID).Msg("sweep: gateway query failed")
		return detail
	}

	switch res.Status {
	case adapter.ChargeStatusApproved:
		// Approved but never captured: the buyer paid and the client crashed
		// before the capture step. Capture now; CaptureOrder is idempotent.
		res, err = gw.CaptureOrder(ctx, detail.OrderID)
		if err != nil {
			detail.Outcome = "error"
			detail.Note = "capture: " + err.Error()
			u.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("sweep: capture failed, leaving pending")
			return detail
		}
		if res.Status != adapter.ChargeStatusCompleted {
			detail.Outcome = "skipped"
			detail.Note = "capture returned " + string(res.Status)
			return detail
		}
		fallthrough
	case adapter.ChargeStatusCompleted:
		if _, _, err := u.settler.Complete(ctx, t, res.PaymentID); err != nil {
			detail.Outcome = "error"
			detail.Note = "settle: " + err.Error()
			return detail
		}
		detail.Outcome = "captured"
		return detail

	case adapter.ChargeStatusDeclined, adapter.ChargeStatusFailed, adapter.ChargeStatusVoided:
		reason := res.Reason
		if reason == "" {
			reason = "gateway reported " + string(res.Status)
		}
		if _, err := u.settler.Fail(ctx, t.ID, model.TransactionStatusFailed, reason); err != nil {
			detail.Outcome = "error"
			detail.Note = err.Error()
			return detail
		}
		detail.Outcome = "failed"
		detail.Note = reason
		return detail

	case adapter.ChargeStatusCancelled:
		if _, err := u.settler.Fail(ctx, t.ID, model.TransactionStatusCancelled, "buyer cancelled at gateway"); err != nil {
			detail.Outcome = "error"
			detail.Note = err.Error()
			return detail
		}
		detail.Outcome = "failed"
		detail.Note = "cancelled"
		return detail

	default:
		// Still pending at the provider. Expire it once it is too old to ever
		// resolve, rather than leaving it undecided forever.
		if u.now().Sub(t.CreatedAt) > u.opts.StaleAfter {
			if _, err := u.settler.Fail(ctx, t.ID, model.TransactionStatusExpired, "pending beyond staleness threshold"); err != nil {
				detail.Outcome = "error"
				detail.Note = err.Error()
				return detail
			}
			detail.Outcome = "expired"
			return detail
		}
		detail.Outcome = "skipped"
		detail.Note = "still pending at gateway"
		return detail
	}
}
