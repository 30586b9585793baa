package workflow

import (
	"fmt"
)

// lifecycle is the receipt transition table. blocked and archived have no outgoing edges.
var lifecycle = buildLifecycle()

func buildLifecycle() *Table {
	builder := NewBuilder()

	builder.Configure(StateUploaded).
		Permit(ConditionAIProcessed, StateExtracted).
		Permit(ConditionCriticalDataMissing, StateBlocked)

	builder.Configure(StateExtracted).
		Permit(ConditionValidationFailed, StateBlocked).
		Permit(ConditionLowConfidence, StateNeedsReview).
		Permit(ConditionUnmappedItems, StateNeedsReview).
		Permit(ConditionValidationPassed, StatePendingConfirmation)

	builder.Configure(StateNeedsReview).
		Permit(ConditionUserReviewed, StatePendingConfirmation).
		Permit(ConditionUserRejected, StateBlocked)

	builder.Configure(StatePendingConfirmation).
		Permit(ConditionUserConfirmed, StateApproved).
		Permit(ConditionUserEditRequested, StateNeedsReview)

	builder.Configure(StateApproved).
		Permit(ConditionInventoryUpdated, StateAppliedInventory)

	builder.Configure(StateAppliedInventory).
		Permit(ConditionInventorySuccess, StatePaymentPending)

	builder.Configure(StatePaymentPending).
		Permit(ConditionPaymentRegistered, StatePaid)

	builder.Configure(StatePaid).
		Permit(ConditionDayClosed, StateArchived)

	return builder.Build()
}

// Lifecycle returns the receipt transition table
func Lifecycle() *Table {
	return lifecycle
}

// CanTransition returns true iff (from, to) is one of the lifecycle edges.
// Conditions are not evaluated here.
func CanTransition(from, to State) bool {
	return lifecycle.CanTransition(from, to)
}

// Resolve returns the state reached from `from` when the condition holds
func Resolve(from State, condition Condition) (State, bool) {
	return lifecycle.Resolve(from, condition)
}

// NextStates lists the states reachable in one step from the given state.
// Terminal and unknown states return nil.
func NextStates(from State) []State {
	edges := lifecycle.Transitions(from)
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[State]bool, len(edges))
	next := make([]State, 0, len(edges))
	for _, e := range edges {
		if !seen[e.To] {
			seen[e.To] = true
			next = append(next, e.To)
		}
	}
	return next
}

// TransitionResult is the outcome of a requested state change
type TransitionResult struct {
	Success bool   `json:"success"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Error   string `json:"error,omitempty"`

	cause error
}

// Err returns nil on success, otherwise an error wrapping one of the package sentinels
func (r TransitionResult) Err() error {
	if r.Success {
		return nil
	}
	if r.cause == nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Error)
	}
	return fmt.Errorf("%w: %s", r.cause, r.Error)
}

// TransitionState checks a requested move from current to target.
// Approval additionally requires validationPassed, independent of the table.
func TransitionState(current, target State, validationPassed bool) TransitionResult {
	result := TransitionResult{From: current, To: target}

	if !current.IsValid() || !target.IsValid() {
		result.cause = ErrInvalidState
		result.Error = fmt.Sprintf("estado desconocido: %s -> %s", current, target)
		return result
	}

	if !CanTransition(current, target) {
		result.cause = ErrInvalidTransition
		result.Error = fmt.Sprintf("transición no permitida: %s -> %s", current, target)
		return result
	}

	if target == StateApproved && !validationPassed {
		result.cause = ErrValidationRequired
		result.Error = "no se puede aprobar un recibo que no pasó la validación"
		return result
	}

	result.Success = true
	return result
}
