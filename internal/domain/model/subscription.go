package model

import (
	"time"

	"promptmarket-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is the entitlement a completed transaction grants.
// For a given (user, plan) at most one row is active at any time; the write
// path enforces this, with a unique index on transaction_id as a second line
// of defense against a webhook/sweeper race.
type Subscription struct {
	ID            string // UUID
	UserID        string // UUID
	PlanID        string // UUID
	Status        SubscriptionStatus
	StartDate     time.Time
	EndDate       *time.Time // nil means lifetime access
	PaymentMethod string     // e.g. "paypal", "tap", "discount"
	PaymentID     string     // provider payment id, or discount sentinel
	TransactionID *string    // link back to the transaction that paid for it
	CreatedAt     time.Time
}

// NewSubscription builds an active entitlement from a paid transaction.
func NewSubscription(id string, t *Transaction, plan *Plan) (*Subscription, error) {
	if id == "" || t == nil || plan == nil {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	sub := &Subscription{
		ID:            id,
		UserID:        t.UserID,
		PlanID:        t.PlanID,
		Status:        SubscriptionStatusActive,
		StartDate:     now,
		PaymentMethod: t.Provider,
		TransactionID: &t.ID,
		CreatedAt:     now,
	}
	if t.ProviderPaymentID != nil {
		sub.PaymentID = *t.ProviderPaymentID
	}
	if plan.DurationDays > 0 {
		end := now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
		sub.EndDate = &end
	}
	return sub, nil
}
