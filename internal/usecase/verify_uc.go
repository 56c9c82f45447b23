// File: internal/usecase/verify_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ VerifyUseCase = (*verifyUC)(nil)

// DiscountLookback bounds how far back step 3 searches for a fee-waived
// checkout with no provider order id.
const DiscountLookback = 30 * time.Minute

// VerifyUnresolvedMessage is the error message carried by an unresolved
// verification, as opposed to a proven failure.
const VerifyUnresolvedMessage = "payment status could not be determined"

// VerifyQuery carries whichever identifiers the caller has. All fields are
// optional; empty string means "not supplied".
type VerifyQuery struct {
	UserID    string
	PlanID    string
	OrderID   string // provider order id from a redirect
	PaymentID string // provider payment id, if capture already happened
}

type VerifyUseCase interface {
	// Verify decides whether a checkout is proven successful, proven failed,
	// or unresolved, by consulting the transaction and subscription stores
	// only. It never calls the gateway: database state always wins, because
	// whichever path reached a terminal status first has already asked it.
	Verify(ctx context.Context, q VerifyQuery) model.VerificationResult
}

type verifyUC struct {
	transactions repository.TransactionRepository
	subs         repository.SubscriptionRepository
	now          func() time.Time
	log          *zerolog.Logger
}

func NewVerifyUseCase(transactions repository.TransactionRepository, subs repository.SubscriptionRepository, logger *zerolog.Logger) *verifyUC {
	return &verifyUC{transactions: transactions, subs: subs, now: time.Now, log: logger}
}

func (u *verifyUC) Verify(ctx context.Context, q VerifyQuery) model.VerificationResult {
	// 1) Cheapest and most authoritative: an active entitlement for the pair.
	// Covers discount checkouts too, which never had a gateway order.
	if q.UserID != "" && q.PlanID != "" {
		sub, err := u.subs.FindActiveByUserAndPlan(ctx, nil, q.UserID, q.PlanID)
		if err == nil && sub != nil {
			return model.VerificationResult{IsSuccessful: true, HasActiveSubscription: true}
		}
	}

	// 2) Redirect-based flows: the transaction row keyed by provider order id.
	if q.OrderID != "" {
		if res, done := u.verifyByOrder(ctx, q); done {
			return res
		}
	}

	// 3) Fee-waived checkouts settle without a provider order id; look for a
	// recent completed transaction whose subscription already exists.
	if q.UserID != "" && q.PlanID != "" {
		since := u.now().Add(-DiscountLookback)
		t, err := u.transactions.FindRecentCompletedDirect(ctx, nil, q.UserID, q.PlanID, since)
		if err == nil && t != nil {
			if sub, err := u.subs.FindByTransactionID(ctx, nil, t.ID); err == nil && sub != nil {
				return model.VerificationResult{
					IsSuccessful:          true,
					HasActiveSubscription: sub.Status == model.SubscriptionStatusActive,
				}
			}
		}
	}

	// 4) Unresolved.
	return model.VerificationResult{
		NeedsAuthentication: q.UserID == "",
		ErrorMessage:        VerifyUnresolvedMessage,
	}
}

// verifyByOrder resolves step 2. The second return value reports whether the
// lookup reached a decision; pending or missing transactions fall through.
func (u *verifyUC) verifyByOrder(ctx context.Context, q VerifyQuery) (model.VerificationResult, bool) {
	t, err := u.transactions.FindByOrderID(ctx, nil, q.OrderID)
	if err != nil || t == nil {
		return model.VerificationResult{}, false
	}

	switch t.Status {
	case model.TransactionStatusCompleted:
		res := model.VerificationResult{IsSuccessful: true}
		if sub, err := u.subs.FindByTransactionID(ctx, nil, t.ID); err == nil && sub != nil {
			res.HasActiveSubscription = sub.Status == model.SubscriptionStatusActive
		} else {
			// Paid but not yet entitled: the caller must finish entitlement
			// creation, and only the paying user may do so.
			res.NeedsAuthentication = q.UserID != "" && q.UserID != t.UserID
		}
		return res, true
	case model.TransactionStatusFailed, model.TransactionStatusCancelled, model.TransactionStatusExpired:
		u.log.Debug().Str("order_id", q.OrderID).Str("status", string(t.Status)).Msg("verify: terminal transaction")
		return model.VerificationResult{
			ErrorMessage: fmt.Sprintf("payment %s", t.Status),
		}, true
	default:
		// Still pending; let the caller fall back to the gateway.
		return model.VerificationResult{}, false
	}
}
