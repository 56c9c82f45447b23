// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
)

var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutRequest describes a checkout initiation. DiscountPercent of 100
// means a fee-waived checkout that never touches a gateway.
type CheckoutRequest struct {
	UserID          string
	PlanID          string
	Provider        string // gateway name, e.g. "paypal" or "tap"
	DiscountPercent int
	ReturnURL       string
	CancelURL       string
}

// CheckoutResult is what the storefront needs to continue the flow.
type CheckoutResult struct {
	Transaction *model.Transaction
	// ApproveURL is where the buyer is redirected; empty for fee-waived
	// checkouts, which settle immediately.
	ApproveURL string
}

type CheckoutUseCase interface {
	Initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutUC struct {
	transactions repository.TransactionRepository
	plans        repository.PlanRepository
	gateways     map[string]adapter.PaymentGateway
	settler      *SettlementService
	log          *zerolog.Logger
}

func NewCheckoutUseCase(
	transactions repository.TransactionRepository,
	plans repository.PlanRepository,
	gateways map[string]adapter.PaymentGateway,
	settler *SettlementService,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{transactions: transactions, plans: plans, gateways: gateways, settler: settler, log: logger}
}

func (u *checkoutUC) Initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.UserID == "" || req.PlanID == "" {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := u.plans.FindByID(ctx, nil, req.PlanID)
	if err != nil {
		return nil, err
	}

	if req.DiscountPercent >= 100 {
		return u.initiateDiscount(ctx, req, plan)
	}

	gw, ok := u.gateways[req.Provider]
	if !ok {
		return nil, fmt.Errorf("checkout: unknown provider %q: %w", req.Provider, domain.ErrInvalidArgument)
	}

	amount := plan.Price
	if req.DiscountPercent > 0 {
		amount = amount - amount*int64(req.DiscountPercent)/100
	}

	now := time.Now()
	t := &model.Transaction{
		ID:        ulid.Make().String(),
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		Provider:  gw.Name(),
		Amount:    amount,
		Currency:  plan.Currency,
		Status:    model.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	orderID, approveURL, err := gw.CreateOrder(ctx, adapter.CreateOrderRequest{
		Amount:    amount,
		Currency:  plan.Currency,
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		Reference: t.ID,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}
	t.ProviderOrderID = &orderID

	if err := u.transactions.Save(ctx, nil, t); err != nil {
		return nil, err
	}
	metrics.IncTransaction(string(model.TransactionStatusPending))
	u.log.Info().Str("transaction_id", t.ID).Str("order_id", orderID).Str("provider", t.Provider).Msg("checkout initiated")

	return &CheckoutResult{Transaction: t, ApproveURL: approveURL}, nil
}

// initiateDiscount settles a fee-waived checkout locally: a completed
// transaction with no provider order id and a sentinel payment id, plus the
// entitlement, in one step.
func (u *checkoutUC) initiateDiscount(ctx context.Context, req CheckoutRequest, plan *model.Plan) (*CheckoutResult, error) {
	now := time.Now()
	paymentID := model.DiscountPaymentPrefix + ulid.Make().String()
	t := &model.Transaction{
		ID:                ulid.Make().String(),
		ProviderPaymentID: &paymentID,
		UserID:            req.UserID,
		PlanID:            req.PlanID,
		Provider:          "discount",
		Amount:            0,
		Currency:          plan.Currency,
		Status:            model.TransactionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.transactions.Save(ctx, nil, t); err != nil {
		return nil, err
	}
	if _, _, err := u.settler.Complete(ctx, t, paymentID); err != nil {
		return nil, err
	}
	u.log.Info().Str("transaction_id", t.ID).Str("user_id", req.UserID).Msg("discount checkout settled")
	return &CheckoutResult{Transaction: t}, nil
}
