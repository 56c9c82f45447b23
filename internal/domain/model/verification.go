package model

// VerificationResult is the sole contract the verifier exposes to page-level
// navigation logic. It is computed, never persisted.
type VerificationResult struct {
	IsSuccessful          bool
	HasActiveSubscription bool
	// NeedsAuthentication is set when the caller's identity cannot be
	// confirmed to match the paying user.
	NeedsAuthentication bool
	ErrorMessage        string
}

// PollState is the callback poller's state machine vocabulary. Checking is the
// only non-terminal state.
type PollState string

const (
	PollStateChecking  PollState = "checking"
	PollStateApproved  PollState = "APPROVED"
	PollStateCompleted PollState = "COMPLETED"
	PollStateFailed    PollState = "FAILED"
	PollStateDeclined  PollState = "DECLINED"
	PollStateCancelled PollState = "CANCELLED"
	PollStateVoided    PollState = "VOIDED"
	PollStateError     PollState = "ERROR"
)

// IsTerminal reports whether the poller stops at this state.
func (s PollState) IsTerminal() bool {
	return s != PollStateChecking
}
