// File: internal/usecase/callback_uc.go
package usecase

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/adapter"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
)

var _ CallbackUseCase = (*callbackUC)(nil)

// CallbackParams is the normalized form of a gateway redirect. Provider query
// parameter aliases are resolved before the poller ever sees them.
type CallbackParams struct {
	Success   bool
	OrderID   string
	PaymentID string
	PayerID   string
	UserID    string
	PlanID    string
}

// NormalizeCallbackParams maps the provider-specific query parameter spellings
// onto CallbackParams. PayPal sends `token`/`PayerID`/`paymentId`; Tap sends
// `order_id`/`payer_id`/`payment_id`.
func NormalizeCallbackParams(q url.Values) CallbackParams {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := q.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	success := first("success")
	return CallbackParams{
		Success:   success == "true" || success == "1",
		OrderID:   first("token", "order_id"),
		PaymentID: first("paymentId", "payment_id"),
		PayerID:   first("PayerID", "payer_id"),
		UserID:    first("user_id"),
		PlanID:    first("plan_id"),
	}
}

// CallbackRoute tells the storefront which page to render.
type CallbackRoute string

const (
	RouteSuccess CallbackRoute = "success"
	RouteFailure CallbackRoute = "failure"
	// RouteProcessing is the timeout variant: the payment may still resolve
	// via webhook or sweep, so the page says "check back later" instead of
	// declaring a hard failure.
	RouteProcessing CallbackRoute = "processing"
)

// CallbackOutcome is the terminal result of one callback session.
type CallbackOutcome struct {
	State    model.PollState
	Route    CallbackRoute
	Reason   string
	Attempts int

	UserID    string
	PlanID    string
	OrderID   string
	PaymentID string
}

type CallbackUseCase interface {
	// Run drives one redirect callback to a terminal state: capture if needed,
	// then poll database truth (falling back to the gateway) until resolved or
	// the iteration budget runs out. Navigating away cancels ctx; that is safe
	// because the webhook handler and the recovery sweep complete the
	// transaction without the client present.
	Run(ctx context.Context, params CallbackParams) CallbackOutcome
}

// CallbackOptions bound the polling loop. Clock and sleep are injectable so
// tests can simulate elapsed time without real delays.
type CallbackOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *CallbackOptions) fill() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 4 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = defaultSleep
	}
}

type callbackUC struct {
	verifier     VerifyUseCase
	transactions repository.TransactionRepository
	gateways     map[string]adapter.PaymentGateway
	settler      *SettlementService
	opts         CallbackOptions
	log          *zerolog.Logger
}

func NewCallbackUseCase(
	verifier VerifyUseCase,
	transactions repository.TransactionRepository,
	gateways map[string]adapter.PaymentGateway,
	settler *SettlementService,
	opts CallbackOptions,
	logger *zerolog.Logger,
) *callbackUC {
	opts.fill()
	return &callbackUC{
		verifier:     verifier,
		transactions: transactions,
		gateways:     gateways,
		settler:      settler,
		opts:         opts,
		log:          logger,
	}
}

func (u *callbackUC) Run(ctx context.Context, params CallbackParams) CallbackOutcome {
	out := CallbackOutcome{
		State:     model.PollStateChecking,
		UserID:    params.UserID,
		PlanID:    params.PlanID,
		OrderID:   params.OrderID,
		PaymentID: params.PaymentID,
	}

	// Explicit gateway-declared abort: no polling needed.
	if !params.Success {
		if id := u.idByOrder(ctx, params.OrderID); id != "" {
			if _, err := u.settler.Fail(ctx, id, model.TransactionStatusCancelled, "buyer cancelled at gateway"); err != nil {
				u.log.Warn().Err(err).Str("order_id", params.OrderID).Msg("callback: record cancellation")
			}
		}
		return u.terminal(out, model.PollStateCancelled, RouteFailure, "payment was cancelled")
	}

	// A callback that identifies nothing is malformed, not retryable.
	if params.OrderID == "" && params.PaymentID == "" {
		u.log.Error().Str("user_id", params.UserID).Str("plan_id", params.PlanID).Msg("callback: malformed, no identifiers")
		return u.terminal(out, model.PollStateError, RouteFailure, domain.ErrMalformedCallback.Error())
	}

	// Capture exactly once, and only when the row has not already been driven
	// terminal by the webhook. Capture failure is terminal for this session;
	// the transaction stays pending so the sweep can retry later.
	if params.OrderID != "" {
		if done, res := u.captureIfNeeded(ctx, params, &out); done {
			return res
		}
	}

	return u.poll(ctx, params, out)
}

// captureIfNeeded runs the capture step. It returns (true, outcome) when the
// session is already decided and polling is unnecessary.
func (u *callbackUC) captureIfNeeded(ctx context.Context, params CallbackParams, out *CallbackOutcome) (bool, CallbackOutcome) {
	t, err := u.transactions.FindByOrderID(ctx, nil, params.OrderID)
	if err != nil || t == nil {
		// Webhook-first arrival may not have created the row yet; the polling
		// loop's gateway fallback covers it.
		return false, CallbackOutcome{}
	}
	if t.Status.IsTerminal() {
		// Someone already finished; let the verifier route it.
		return false, CallbackOutcome{}
	}

	gw, ok := u.gateways[t.Provider]
	if !ok {
		return true, u.terminal(*out, model.PollStateError, RouteFailure, "no gateway configured for "+t.Provider)
	}
	res, err := gw.CaptureOrder(ctx, params.OrderID)
	if err != nil {
		u.log.Error().Err(err).Str("order_id", params.OrderID).Str("transaction_id", t.ID).Msg("callback: capture failed")
		metrics.IncCapture(t.Provider, "error")
		return true, u.terminal(*out, model.PollStateFailed, RouteFailure, domain.ErrCaptureFailed.Error()+": "+err.Error())
	}
	metrics.IncCapture(t.Provider, string(res.Status))

	switch res.Status {
	case adapter.ChargeStatusCompleted:
		if _, _, err := u.settler.Complete(ctx, t, res.PaymentID); err != nil {
			u.log.Error().Err(err).Str("transaction_id", t.ID).Msg("callback: settle after capture")
			return false, CallbackOutcome{} // fall through to polling; webhook may still settle
		}
		out.PaymentID = res.PaymentID
		return true, u.terminal(*out, model.PollStateCompleted, RouteSuccess, "")
	case adapter.ChargeStatusDeclined, adapter.ChargeStatusFailed, adapter.ChargeStatusVoided:
		reason := res.Reason
		if reason == "" {
			reason = "capture " + string(res.Status)
		}
		if _, err := u.settler.Fail(ctx, t.ID, model.TransactionStatusFailed, reason); err != nil {
			u.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("callback: record capture failure")
		}
		return true, u.terminal(*out, pollStateFor(res.Status), RouteFailure, reason)
	default:
		// Still pending at the provider; poll.
		return false, CallbackOutcome{}
	}
}

func (u *callbackUC) poll(ctx context.Context, params CallbackParams, out CallbackOutcome) CallbackOutcome {
	delay := u.opts.BaseDelay
	for attempt := 1; attempt <= u.opts.MaxAttempts; attempt++ {
		out.Attempts = attempt

		res := u.verifier.Verify(ctx, VerifyQuery{
			UserID:    params.UserID,
			PlanID:    params.PlanID,
			OrderID:   params.OrderID,
			PaymentID: params.PaymentID,
		})
		switch {
		case res.IsSuccessful && res.HasActiveSubscription:
			return u.terminal(out, model.PollStateCompleted, RouteSuccess, "")
		case res.IsSuccessful:
			// Paid but not yet entitled; finish entitlement creation here.
			if state, route, reason, ok := u.finishEntitlement(ctx, params); ok {
				return u.terminal(out, state, route, reason)
			}
		case res.ErrorMessage != "" && res.ErrorMessage != VerifyUnresolvedMessage:
			state := model.PollStateFailed
			if strings.HasSuffix(res.ErrorMessage, string(model.TransactionStatusCancelled)) {
				state = model.PollStateCancelled
			}
			return u.terminal(out, state, RouteFailure, res.ErrorMessage)
		default:
			// No database record yet: ask the gateway directly.
			if state, route, reason, decided := u.queryGateway(ctx, params); decided {
				return u.terminal(out, state, route, reason)
			}
		}

		if attempt == u.opts.MaxAttempts {
			break
		}
		if err := u.opts.Sleep(ctx, delay); err != nil {
			u.log.Info().Err(err).Int("attempt", attempt).Str("order_id", params.OrderID).Msg("callback: polling cancelled")
			return u.terminal(out, model.PollStateError, RouteProcessing, "polling cancelled")
		}
		delay *= 2
		if delay > u.opts.MaxDelay {
			delay = u.opts.MaxDelay
		}
	}

	u.log.Warn().Int("attempts", out.Attempts).Str("order_id", params.OrderID).Str("user_id", params.UserID).Msg("callback: polling budget exhausted")
	return u.terminal(out, model.PollStateError, RouteProcessing, domain.ErrVerificationTimeout.Error())
}

// finishEntitlement completes the grant for a transaction the verifier proved
// paid but not yet entitled.
func (u *callbackUC) finishEntitlement(ctx context.Context, params CallbackParams) (model.PollState, CallbackRoute, string, bool) {
	if params.OrderID == "" {
		return "", "", "", false
	}
	t, err := u.transactions.FindByOrderID(ctx, nil, params.OrderID)
	if err != nil || t == nil {
		return "", "", "", false
	}
	if params.UserID != "" && params.UserID != t.UserID {
		return model.PollStateError, RouteFailure, "payment belongs to a different account", true
	}
	if _, _, err := u.settler.Complete(ctx, t, ""); err != nil {
		u.log.Error().Err(err).Str("transaction_id", t.ID).Msg("callback: finish entitlement")
		return "", "", "", false
	}
	return model.PollStateCompleted, RouteSuccess, "", true
}

// queryGateway is the fallback when the stores have nothing for this order.
func (u *callbackUC) queryGateway(ctx context.Context, params CallbackParams) (model.PollState, CallbackRoute, string, bool) {
	if params.OrderID == "" {
		return "", "", "", false
	}
	for _, gw := range u.gateways {
		res, err := gw.QueryOrder(ctx, params.OrderID)
		if err != nil {
			continue
		}
		switch res.Status {
		case adapter.ChargeStatusDeclined, adapter.ChargeStatusFailed,
			adapter.ChargeStatusVoided, adapter.ChargeStatusCancelled:
			reason := res.Reason
			if reason == "" {
				reason = "gateway reported " + string(res.Status)
			}
			return pollStateFor(res.Status), RouteFailure, reason, true
		default:
			// pending/approved/completed without a transaction row: keep
			// polling, the webhook will materialize it.
			return "", "", "", false
		}
	}
	return "", "", "", false
}

func (u *callbackUC) terminal(out CallbackOutcome, state model.PollState, route CallbackRoute, reason string) CallbackOutcome {
	out.State = state
	out.Route = route
	out.Reason = reason
	metrics.IncCallbackOutcome(string(state))
	if route != RouteSuccess {
		u.log.Warn().
			Str("state", string(state)).
			Str("reason", reason).
			Str("order_id", out.OrderID).
			Str("payment_id", out.PaymentID).
			Str("user_id", out.UserID).
			Str("plan_id", out.PlanID).
			Int("attempts", out.Attempts).
			Msg("callback: negative terminal state")
	}
	return out
}

// idByOrder resolves a transaction id from an order id, tolerating absence.
func (u *callbackUC) idByOrder(ctx context.Context, orderID string) string {
	if orderID == "" {
		return ""
	}
	t, err := u.transactions.FindByOrderID(ctx, nil, orderID)
	if err != nil || t == nil {
		return ""
	}
	return t.ID
}

func pollStateFor(s adapter.ChargeStatus) model.PollState {
	switch s {
	case adapter.ChargeStatusCompleted:
		return model.PollStateCompleted
	case adapter.ChargeStatusApproved:
		return model.PollStateApproved
	case adapter.ChargeStatusDeclined:
		return model.PollStateDeclined
	case adapter.ChargeStatusCancelled:
		return model.PollStateCancelled
	case adapter.ChargeStatusVoided:
		return model.PollStateVoided
	case adapter.ChargeStatusFailed:
		return model.PollStateFailed
	default:
		return model.PollStateError
	}
}
