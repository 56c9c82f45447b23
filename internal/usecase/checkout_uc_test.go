//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/usecase"
)

type checkoutDeps struct {
	transactions *MockTransactionRepo
	subs         *MockSubscriptionRepo
	plans        *MockPlanRepo
	gateway      *MockPaymentGateway
	uc           usecase.CheckoutUseCase
}

func newCheckoutDeps() *checkoutDeps {
	d := &checkoutDeps{
		transactions: NewMockTransactionRepo(),
		subs:         NewMockSubscriptionRepo(),
		plans:        NewMockPlanRepo(),
		gateway:      &MockPaymentGateway{NameVal: "paypal"},
	}
	d.plans.Save(context.Background(), nil, monthlyPlan())
	settler := usecase.NewSettlementService(d.transactions, d.subs, d.plans, &MockTxManager{}, newTestLogger())
	d.uc = usecase.NewCheckoutUseCase(
		d.transactions,
		d.plans,
		map[string]adapter.PaymentGateway{"paypal": d.gateway},
		settler,
		newTestLogger(),
	)
	return d
}

func TestCheckoutUseCase_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a gateway order and saves a pending transaction", func(t *testing.T) {
		deps := newCheckoutDeps()
		var createReq adapter.CreateOrderRequest
		deps.gateway.CreateOrderFunc = func(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
			createReq = req
			return "ORDER-1", "https://gateway.example/approve/ORDER-1", nil
		}

		res, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{
			UserID:   "user-1",
			PlanID:   "plan-1",
			Provider: "paypal",
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.ApproveURL != "https://gateway.example/approve/ORDER-1" {
			t.Fatalf("unexpected approve url: %q", res.ApproveURL)
		}

		stored := deps.transactions.Get(res.Transaction.ID)
		if stored == nil || stored.Status != model.TransactionStatusPending {
			t.Fatal("a pending transaction must be saved")
		}
		if stored.ProviderOrderID == nil || *stored.ProviderOrderID != "ORDER-1" {
			t.Fatal("the gateway order id must be recorded")
		}
		if createReq.Reference != res.Transaction.ID {
			t.Fatal("the transaction id must travel as the order reference")
		}
		if createReq.Amount != 2500 || createReq.Currency != "USD" {
			t.Fatalf("unexpected order amount: %d %s", createReq.Amount, createReq.Currency)
		}
	})

	t.Run("partial discounts reduce the charged amount", func(t *testing.T) {
		deps := newCheckoutDeps()
		var createReq adapter.CreateOrderRequest
		deps.gateway.CreateOrderFunc = func(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
			createReq = req
			return "ORDER-1", "https://gateway.example/approve", nil
		}

		res, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{
			UserID:          "user-1",
			PlanID:          "plan-1",
			Provider:        "paypal",
			DiscountPercent: 25,
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if createReq.Amount != 1875 {
			t.Fatalf("expected 25%% off 2500, got %d", createReq.Amount)
		}
		if res.Transaction.Amount != 1875 {
			t.Fatalf("transaction amount mismatch: %d", res.Transaction.Amount)
		}
	})

	t.Run("a full discount settles locally without the gateway", func(t *testing.T) {
		deps := newCheckoutDeps()

		res, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{
			UserID:          "user-1",
			PlanID:          "plan-1",
			DiscountPercent: 100,
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.ApproveURL != "" {
			t.Fatal("fee-waived checkouts have no approval step")
		}
		if deps.gateway.CreateCalls != 0 {
			t.Fatal("the gateway must never be contacted")
		}

		stored := deps.transactions.Get(res.Transaction.ID)
		if stored.Status != model.TransactionStatusCompleted {
			t.Fatalf("expected a completed transaction, got %s", stored.Status)
		}
		if stored.ProviderOrderID != nil {
			t.Fatal("discount checkouts carry no provider order id")
		}
		if stored.ProviderPaymentID == nil || !strings.HasPrefix(*stored.ProviderPaymentID, model.DiscountPaymentPrefix) {
			t.Fatal("discount checkouts carry the sentinel payment id")
		}
		if !stored.IsDiscount() {
			t.Fatal("IsDiscount must recognize the sentinel")
		}
		sub, err := deps.subs.FindByTransactionID(ctx, nil, res.Transaction.ID)
		if err != nil || sub.Status != model.SubscriptionStatusActive {
			t.Fatalf("the entitlement must be granted immediately: %v", err)
		}
	})

	t.Run("input validation", func(t *testing.T) {
		deps := newCheckoutDeps()

		if _, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{PlanID: "plan-1", Provider: "paypal"}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("missing user id: expected ErrInvalidArgument, got %v", err)
		}
		if _, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{UserID: "user-1", PlanID: "plan-404", Provider: "paypal"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("unknown plan: expected ErrNotFound, got %v", err)
		}
		if _, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{UserID: "user-1", PlanID: "plan-1", Provider: "stripe"}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("unknown provider: expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("a gateway failure leaves no transaction behind", func(t *testing.T) {
		deps := newCheckoutDeps()
		deps.gateway.CreateOrderFunc = func(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
			return "", "", errors.New("gateway unreachable")
		}

		if _, err := deps.uc.Initiate(ctx, usecase.CheckoutRequest{UserID: "user-1", PlanID: "plan-1", Provider: "paypal"}); err == nil {
			t.Fatal("expected the gateway error to propagate")
		}
	})
}
