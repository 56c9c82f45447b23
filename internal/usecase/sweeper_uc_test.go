//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/usecase"
)

type sweeperDeps struct {
	transactions *MockTransactionRepo
	subs         *MockSubscriptionRepo
	plans        *MockPlanRepo
	gateway      *MockPaymentGateway
	uc           usecase.SweeperUseCase
}

func newSweeperDeps(staleAfter time.Duration) *sweeperDeps {
	d := &sweeperDeps{
		transactions: NewMockTransactionRepo(),
		subs:         NewMockSubscriptionRepo(),
		plans:        NewMockPlanRepo(),
		gateway:      &MockPaymentGateway{NameVal: "paypal"},
	}
	d.plans.Save(context.Background(), nil, monthlyPlan())
	settler := usecase.NewSettlementService(d.transactions, d.subs, d.plans, &MockTxManager{}, newTestLogger())
	d.uc = usecase.NewSweeperUseCase(
		d.transactions,
		map[string]adapter.PaymentGateway{"paypal": d.gateway},
		settler,
		usecase.SweeperOptions{Concurrency: 2, StaleAfter: staleAfter},
		newTestLogger(),
	)
	return d
}

func detailFor(summary *usecase.SweepSummary, txID string) *usecase.SweepDetail {
	for i := range summary.Details {
		if summary.Details[i].TransactionID == txID {
			return &summary.Details[i]
		}
	}
	return nil
}

func TestSweeperUseCase_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("captures an approved order the buyer abandoned", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		deps.transactions.Save(ctx, nil, pendingTx("tx-1", "ORDER-1"))
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusApproved}, nil
		}
		deps.gateway.CaptureOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{OrderID: orderID, PaymentID: "PAY-1", Status: adapter.ChargeStatusCompleted}, nil
		}

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Processed != 1 || summary.Captured != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		if deps.gateway.CaptureCalls != 1 {
			t.Fatalf("expected one capture, got %d", deps.gateway.CaptureCalls)
		}
		if deps.transactions.Get("tx-1").Status != model.TransactionStatusCompleted {
			t.Fatal("transaction must be completed")
		}
		if _, err := deps.subs.FindByTransactionID(ctx, nil, "tx-1"); err != nil {
			t.Fatal("entitlement must be granted")
		}
	})

	t.Run("settles an order the gateway already captured", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		deps.transactions.Save(ctx, nil, pendingTx("tx-1", "ORDER-1"))
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{OrderID: orderID, PaymentID: "PAY-1", Status: adapter.ChargeStatusCompleted}, nil
		}

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Captured != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		if deps.gateway.CaptureCalls != 0 {
			t.Fatal("no capture call is needed for a completed order")
		}
	})

	t.Run("closes orders the gateway declined", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		deps.transactions.Save(ctx, nil, pendingTx("tx-1", "ORDER-1"))
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusDeclined, Reason: "card refused"}, nil
		}

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Failed != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		stored := deps.transactions.Get("tx-1")
		if stored.Status != model.TransactionStatusFailed || stored.FailureReason != "card refused" {
			t.Fatalf("unexpected row: status=%s reason=%q", stored.Status, stored.FailureReason)
		}
	})

	t.Run("records buyer cancellation", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		deps.transactions.Save(ctx, nil, pendingTx("tx-1", "ORDER-1"))
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusCancelled}, nil
		}

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Failed != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		if deps.transactions.Get("tx-1").Status != model.TransactionStatusCancelled {
			t.Fatal("transaction must be closed as cancelled")
		}
	})

	t.Run("expires rows stuck pending beyond the staleness threshold", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		old := pendingTx("tx-old", "ORDER-old")
		old.CreatedAt = time.Now().Add(-25 * time.Hour)
		deps.transactions.Save(ctx, nil, old)
		fresh := pendingTx("tx-fresh", "ORDER-fresh")
		deps.transactions.Save(ctx, nil, fresh)

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Processed != 2 || summary.Expired != 1 || summary.Skipped != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		if deps.transactions.Get("tx-old").Status != model.TransactionStatusExpired {
			t.Fatal("stale row must be expired")
		}
		if deps.transactions.Get("tx-fresh").Status != model.TransactionStatusPending {
			t.Fatal("fresh row must stay pending")
		}
	})

	t.Run("one failing item never aborts the batch", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		deps.transactions.Save(ctx, nil, pendingTx("tx-bad", "ORDER-bad"))
		deps.transactions.Save(ctx, nil, pendingTx("tx-good", "ORDER-good"))
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			if orderID == "ORDER-bad" {
				return adapter.ChargeResult{}, errors.New("gateway 500")
			}
			return adapter.ChargeResult{OrderID: orderID, PaymentID: "PAY-2", Status: adapter.ChargeStatusCompleted}, nil
		}

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Processed != 2 || summary.Captured != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		bad := detailFor(summary, "tx-bad")
		if bad == nil || bad.Outcome != "error" {
			t.Fatalf("expected an error detail for tx-bad, got %+v", bad)
		}
		if deps.transactions.Get("tx-bad").Status != model.TransactionStatusPending {
			t.Fatal("the failing item must stay pending for the next sweep")
		}
		if deps.transactions.Get("tx-good").Status != model.TransactionStatusCompleted {
			t.Fatal("the healthy item must still settle")
		}
	})

	t.Run("skips providers with no configured gateway", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		txn := pendingTx("tx-1", "ORDER-1")
		txn.Provider = "decommissioned"
		deps.transactions.Save(ctx, nil, txn)

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Skipped != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
		if deps.gateway.QueryCalls != 0 {
			t.Fatal("no gateway call expected for an unconfigured provider")
		}
	})

	t.Run("returns when the context is cancelled mid-batch", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)
		for _, id := range []string{"tx-1", "tx-2", "tx-3", "tx-4", "tx-5"} {
			deps.transactions.Save(ctx, nil, pendingTx(id, "ORDER-"+id))
		}
		deps.gateway.QueryOrderFunc = func(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
			if err := ctx.Err(); err != nil {
				return adapter.ChargeResult{}, err
			}
			return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusPending}, nil
		}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		done := make(chan *usecase.SweepSummary, 1)
		go func() {
			summary, err := deps.uc.Sweep(cancelled)
			if err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
			done <- summary
		}()

		select {
		case summary := <-done:
			if summary.Processed != 5 {
				t.Fatalf("every item must be accounted for, got %+v", summary)
			}
			if summary.Captured != 0 || summary.Failed != 0 || summary.Expired != 0 {
				t.Fatalf("no item may be driven terminal after cancellation: %+v", summary)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("sweep did not return after cancellation")
		}
	})

	t.Run("empty batch yields an empty summary", func(t *testing.T) {
		deps := newSweeperDeps(24 * time.Hour)

		summary, err := deps.uc.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if summary.Processed != 0 || len(summary.Details) != 0 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
	})
}
