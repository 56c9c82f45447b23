//go:build !integration

package web

import (
	"context"

	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/usecase"

	"github.com/rs/zerolog"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// --- Mock use cases ---

type mockCheckoutUC struct {
	InitiateFunc func(ctx context.Context, req usecase.CheckoutRequest) (*usecase.CheckoutResult, error)
}

func (m *mockCheckoutUC) Initiate(ctx context.Context, req usecase.CheckoutRequest) (*usecase.CheckoutResult, error) {
	return m.InitiateFunc(ctx, req)
}

type mockCallbackUC struct {
	RunFunc func(ctx context.Context, params usecase.CallbackParams) usecase.CallbackOutcome
}

func (m *mockCallbackUC) Run(ctx context.Context, params usecase.CallbackParams) usecase.CallbackOutcome {
	return m.RunFunc(ctx, params)
}

type mockWebhookUC struct {
	ProcessFunc func(ctx context.Context, ev usecase.WebhookEvent) (usecase.WebhookResult, error)
	Events      []usecase.WebhookEvent
}

func (m *mockWebhookUC) Process(ctx context.Context, ev usecase.WebhookEvent) (usecase.WebhookResult, error) {
	m.Events = append(m.Events, ev)
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, ev)
	}
	return usecase.WebhookCompleted, nil
}

type mockVerifyUC struct {
	VerifyFunc func(ctx context.Context, q usecase.VerifyQuery) model.VerificationResult
}

func (m *mockVerifyUC) Verify(ctx context.Context, q usecase.VerifyQuery) model.VerificationResult {
	return m.VerifyFunc(ctx, q)
}

type mockSweeperUC struct {
	SweepFunc func(ctx context.Context) (*usecase.SweepSummary, error)
}

func (m *mockSweeperUC) Sweep(ctx context.Context) (*usecase.SweepSummary, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return &usecase.SweepSummary{Details: []usecase.SweepDetail{}}, nil
}

// --- Mock repositories ---

type mockTransactionRepo struct {
	repository.TransactionRepository // Embed interface for forward compatibility
	FindByIDFunc                     func(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error)
}

func (m *mockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

type mockPlanRepo struct {
	repository.PlanRepository // Embed interface
	ListActiveFunc            func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
	SaveFunc                  func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
}

func (m *mockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, tx)
	}
	return []*model.Plan{}, nil
}

func (m *mockPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, plan)
	}
	return nil
}
