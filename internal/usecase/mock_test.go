//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// =============================
// Repositories
// =============================

// MockTransactionRepo is an in-memory TransactionRepository with hook fields
// to override individual methods per test.
type MockTransactionRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Transaction

	SaveFunc                  func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
	FindByOrderIDFunc         func(ctx context.Context, tx repository.Tx, orderID string) (*model.Transaction, error)
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, paymentID *string, reason string) (bool, error)
	ListPendingWithOrderFunc  func(ctx context.Context, tx repository.Tx, limit int) ([]*model.Transaction, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{byID: make(map[string]*model.Transaction)}
}

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Transaction, error) {
	if m.FindByOrderIDFunc != nil {
		return m.FindByOrderIDFunc(ctx, tx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.ProviderOrderID != nil && *t.ProviderOrderID == orderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, paymentID *string, reason string) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, tx, id, status, paymentID, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status != model.TransactionStatusPending {
		return false, nil
	}
	t.Status = status
	if paymentID != nil {
		t.ProviderPaymentID = paymentID
	}
	t.FailureReason = reason
	t.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockTransactionRepo) ListPendingWithOrder(ctx context.Context, tx repository.Tx, limit int) ([]*model.Transaction, error) {
	if m.ListPendingWithOrderFunc != nil {
		return m.ListPendingWithOrderFunc(ctx, tx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.byID {
		if t.Status == model.TransactionStatusPending && t.ProviderOrderID != nil {
			cp := *t
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) FindRecentCompletedDirect(ctx context.Context, tx repository.Tx, userID, planID string, since time.Time) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.UserID == userID && t.PlanID == planID &&
			t.Status == model.TransactionStatusCompleted &&
			t.ProviderOrderID == nil && !t.CreatedAt.Before(since) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Get returns the stored row for assertions.
func (m *MockTransactionRepo) Get(id string) *model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// MockSubscriptionRepo keys entitlements by transaction id, mirroring the
// unique index the real store relies on.
type MockSubscriptionRepo struct {
	mu     sync.Mutex
	byTxID map[string]*model.Subscription

	CreateIfAbsentFunc func(ctx context.Context, tx repository.Tx, sub *model.Subscription) (bool, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byTxID: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) CreateIfAbsent(ctx context.Context, tx repository.Tx, sub *model.Subscription) (bool, error) {
	if m.CreateIfAbsentFunc != nil {
		return m.CreateIfAbsentFunc(ctx, tx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ""
	if sub.TransactionID != nil {
		key = *sub.TransactionID
	}
	if _, exists := m.byTxID[key]; exists {
		return false, nil
	}
	cp := *sub
	m.byTxID[key] = &cp
	return true, nil
}

func (m *MockSubscriptionRepo) FindActiveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byTxID {
		if s.UserID == userID && s.PlanID == planID && s.Status == model.SubscriptionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byTxID[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) CancelActive(ctx context.Context, tx repository.Tx, userID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byTxID {
		if s.UserID == userID && s.PlanID == planID && s.Status == model.SubscriptionStatusActive {
			s.Status = model.SubscriptionStatusCancelled
			return nil
		}
	}
	return domain.ErrNotFound
}

// Get returns the stored subscription by id, nil when absent.
func (m *MockSubscriptionRepo) Get(id string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byTxID {
		if s.ID == id {
			cp := *s
			return &cp
		}
	}
	return nil
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byTxID {
		if s.Status == model.SubscriptionStatusActive && s.EndDate != nil && s.EndDate.Before(now) {
			s.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

type MockPlanRepo struct {
	mu    sync.Mutex
	plans map[string]*model.Plan
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{plans: make(map[string]*model.Plan)}
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.plans[plan.ID] = &cp
	return nil
}

// =============================
// Adapters
// =============================

type MockPaymentGateway struct {
	NameVal string

	CreateOrderFunc  func(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error)
	CaptureOrderFunc func(ctx context.Context, orderID string) (adapter.ChargeResult, error)
	QueryOrderFunc   func(ctx context.Context, orderID string) (adapter.ChargeResult, error)

	mu           sync.Mutex
	CreateCalls  int
	CaptureCalls int
	QueryCalls   int
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string {
	if m.NameVal == "" {
		return "paypal"
	}
	return m.NameVal
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req)
	}
	return "ORDER-1", "https://gateway.example/approve/ORDER-1", nil
}

func (m *MockPaymentGateway) CaptureOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	m.mu.Lock()
	m.CaptureCalls++
	m.mu.Unlock()
	if m.CaptureOrderFunc != nil {
		return m.CaptureOrderFunc(ctx, orderID)
	}
	return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusCompleted, PaymentID: "PAY-1"}, nil
}

func (m *MockPaymentGateway) QueryOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.mu.Unlock()
	if m.QueryOrderFunc != nil {
		return m.QueryOrderFunc(ctx, orderID)
	}
	return adapter.ChargeResult{OrderID: orderID, Status: adapter.ChargeStatusPending}, nil
}

// =============================
// Transaction manager
// =============================

type noTx struct{}

type MockTxManager struct{}

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, noTx{})
}
