package receipt

import (
	"testing"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	r := NewRecord("rest-1", SourceCamera, []string{"h1"}, []string{"a.jpg"}, now)

	assert.NotEmpty(t, r.Reference)
	assert.Equal(t, workflow.StateUploaded, r.State)
	assert.Equal(t, now, r.CreatedAt)
	assert.Nil(t, r.EffectiveExtraction())
	assert.True(t, r.HasCaptureHash("x", "h1"))
	assert.False(t, r.HasCaptureHash("x"))
}

func TestRecord_SetOriginalExtractionOnce(t *testing.T) {
	r := NewRecord("rest-1", SourceUpload, nil, nil, time.Now())

	first := Extraction{SupplierName: Ptr("Primero")}
	require.True(t, r.SetOriginalExtraction(first))
	assert.False(t, r.SetOriginalExtraction(Extraction{SupplierName: Ptr("Segundo")}))

	*first.SupplierName = "mutated"
	assert.Equal(t, "Primero", r.OriginalExtraction.SupplierNameValue())
}

func TestRecord_EffectiveExtractionPrefersCorrection(t *testing.T) {
	r := NewRecord("rest-1", SourceUpload, nil, nil, time.Now())
	r.SetOriginalExtraction(Extraction{SupplierName: Ptr("OCR")})
	assert.Equal(t, "OCR", r.EffectiveExtraction().SupplierNameValue())

	r.UserCorrected = &Extraction{SupplierName: Ptr("Usuario")}
	assert.Equal(t, "Usuario", r.EffectiveExtraction().SupplierNameValue())
}

func TestRecord_EnterStateStampsTimestamps(t *testing.T) {
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	r := NewRecord("rest-1", SourceUpload, nil, nil, base)

	steps := []workflow.State{
		workflow.StateExtracted,
		workflow.StatePendingConfirmation,
		workflow.StateApproved,
		workflow.StateAppliedInventory,
		workflow.StatePaymentPending,
		workflow.StatePaid,
		workflow.StateArchived,
	}
	for i, s := range steps {
		r.EnterState(s, base.Add(time.Duration(i+1)*time.Minute))
	}

	require.NotNil(t, r.ExtractedAt)
	assert.Equal(t, base.Add(time.Minute), *r.ExtractedAt)
	require.NotNil(t, r.ConfirmedAt)
	require.NotNil(t, r.ApprovedAt)
	require.NotNil(t, r.PaidAt)
	assert.Equal(t, base.Add(6*time.Minute), *r.PaidAt)
	require.NotNil(t, r.ArchivedAt)
	assert.Equal(t, workflow.StateArchived, r.State)

	assert.Nil(t, r.InventoryAppliedAt, "inventory timestamp is only set by application")
	assert.Nil(t, r.StateTimestamp(workflow.StateAppliedInventory))
	assert.False(t, r.InventoryApplied())
}

func TestCaptureSource_IsValid(t *testing.T) {
	assert.True(t, SourceEmail.IsValid())
	assert.False(t, CaptureSource("fax").IsValid())
}
