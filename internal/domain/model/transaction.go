package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"   // checkout initiated; awaiting capture or webhook
	TransactionStatusCompleted TransactionStatus = "completed" // captured and settled at provider
	TransactionStatusFailed    TransactionStatus = "failed"    // capture declined or provider reported failure
	TransactionStatusCancelled TransactionStatus = "cancelled" // buyer abandoned at the gateway
	TransactionStatusExpired   TransactionStatus = "expired"   // stale pending closed by the recovery sweep
)

// IsTerminal reports whether no further transition is expected.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// DiscountPaymentPrefix marks fee-waived checkouts that never touched a gateway.
// Such transactions carry no provider order id and are settled locally.
const DiscountPaymentPrefix = "discount_"

// Transaction records one checkout attempt. The row's status is the single
// source of truth for the payment lifecycle: whoever transitions it out of
// pending first is authoritative, everyone else observes and no-ops.
type Transaction struct {
	ID                string  // ULID
	ProviderOrderID   *string // provider order/charge id; nil for discount checkouts
	ProviderPaymentID *string // provider capture/payment id; set after capture
	UserID            string  // UUID
	PlanID            string  // UUID
	Provider          string  // e.g. "paypal", "tap"
	Amount            int64   // minor units
	Currency          string  // ISO 4217
	Status            TransactionStatus
	FailureReason     string // provider reason for a negative terminal status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsDiscount reports whether this transaction was settled via a 100% discount
// rather than a gateway charge.
func (t *Transaction) IsDiscount() bool {
	if t.ProviderPaymentID == nil {
		return false
	}
	return len(*t.ProviderPaymentID) > len(DiscountPaymentPrefix) &&
		(*t.ProviderPaymentID)[:len(DiscountPaymentPrefix)] == DiscountPaymentPrefix
}
