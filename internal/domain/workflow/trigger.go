package workflow

// Condition labels why a transition happens. The table records it for the caller;
// deciding when a condition holds is the caller's job.
type Condition string

const (
	ConditionAIProcessed         Condition = "ai_processed"
	ConditionCriticalDataMissing Condition = "critical_data_missing"
	ConditionValidationFailed    Condition = "validation_failed"
	ConditionLowConfidence       Condition = "low_confidence"
	ConditionUnmappedItems       Condition = "unmapped_items"
	ConditionValidationPassed    Condition = "validation_passed"
	ConditionUserReviewed        Condition = "user_reviewed"
	ConditionUserRejected        Condition = "user_rejected"
	ConditionUserConfirmed       Condition = "user_confirmed"
	ConditionUserEditRequested   Condition = "user_edit_requested"
	ConditionInventoryUpdated    Condition = "inventory_updated"
	ConditionInventorySuccess    Condition = "inventory_success"
	ConditionPaymentRegistered   Condition = "payment_registered"
	ConditionDayClosed           Condition = "day_closed"
)

// String returns the string representation of the condition
func (c Condition) String() string {
	return string(c)
}
