package adapter

import "context"

// ChargeStatus is the normalized status vocabulary every provider response is
// mapped into at the adapter boundary. Nothing outside the adapters inspects
// provider-specific shapes.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"   // created, awaiting payer action or settlement
	ChargeStatusApproved  ChargeStatus = "approved"  // payer approved, capture still required
	ChargeStatusCompleted ChargeStatus = "completed" // captured and settled
	ChargeStatusDeclined  ChargeStatus = "declined"
	ChargeStatusFailed    ChargeStatus = "failed"
	ChargeStatusVoided    ChargeStatus = "voided"
	ChargeStatusCancelled ChargeStatus = "cancelled"
	ChargeStatusUnknown   ChargeStatus = "unknown"
)

// ChargeResult is the provider-agnostic outcome of a capture or status query.
type ChargeResult struct {
	OrderID   string
	PaymentID string // capture/charge id once one exists
	Status    ChargeStatus
	Amount    int64
	Currency  string
	Reason    string // provider's human-readable reason for negative statuses
}

// CreateOrderRequest carries what a provider needs to open a checkout.
type CreateOrderRequest struct {
	Amount    int64
	Currency  string
	UserID    string
	PlanID    string
	Reference string // our transaction id, echoed back in webhooks
	ReturnURL string
	CancelURL string
}

// PaymentGateway is the hex port for payment providers (PayPal, Tap).
type PaymentGateway interface {
	Name() string

	// CreateOrder opens an order/charge with the provider and returns its id
	// plus the URL the buyer is redirected to for approval.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (orderID, approveURL string, err error)

	// CaptureOrder finalizes an approved order so funds actually move.
	// Capturing an already-captured order must return the settled result
	// rather than an error.
	CaptureOrder(ctx context.Context, orderID string) (ChargeResult, error)

	// QueryOrder returns the provider's authoritative view of an order.
	QueryOrder(ctx context.Context, orderID string) (ChargeResult, error)
}
