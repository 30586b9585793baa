package workflow

// State represents a receipt lifecycle state
type State string

const (
	StateUploaded            State = "uploaded"
	StateExtracted           State = "extracted"
	StateBlocked             State = "blocked"
	StateNeedsReview         State = "needs_review"
	StatePendingConfirmation State = "pending_confirmation"
	StateApproved            State = "approved"
	StateAppliedInventory    State = "applied_inventory"
	StatePaymentPending      State = "payment_pending"
	StatePaid                State = "paid"
	StateArchived            State = "archived"
)

// AllStates lists every lifecycle state in workflow order
var AllStates = []State{
	StateUploaded,
	StateExtracted,
	StateBlocked,
	StateNeedsReview,
	StatePendingConfirmation,
	StateApproved,
	StateAppliedInventory,
	StatePaymentPending,
	StatePaid,
	StateArchived,
}

// IsTerminal returns true if the lifecycle table has no outgoing transition for the state
func (s State) IsTerminal() bool {
	return s.IsValid() && len(lifecycle.Transitions(s)) == 0
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the lifecycle states
func (s State) IsValid() bool {
	switch s {
	case StateUploaded, StateExtracted, StateBlocked, StateNeedsReview, StatePendingConfirmation,
		StateApproved, StateAppliedInventory, StatePaymentPending, StatePaid, StateArchived:
		return true
	}
	return false
}

// ParseState converts a raw string into a State
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}
