package workflow

// DisplayStatus is the presentation mapping for a state
type DisplayStatus struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var displayStatuses = map[State]DisplayStatus{
	StateUploaded:            {Label: "Subido", Color: "gray", Icon: "upload"},
	StateExtracted:           {Label: "Datos extraídos", Color: "blue", Icon: "file-text"},
	StateBlocked:             {Label: "Bloqueado", Color: "red", Icon: "x-circle"},
	StateNeedsReview:         {Label: "Requiere revisión", Color: "yellow", Icon: "alert-triangle"},
	StatePendingConfirmation: {Label: "Pendiente de confirmación", Color: "orange", Icon: "clock"},
	StateApproved:            {Label: "Aprobado", Color: "green", Icon: "check-circle"},
	StateAppliedInventory:    {Label: "Inventario registrado", Color: "teal", Icon: "package"},
	StatePaymentPending:      {Label: "Pago pendiente", Color: "purple", Icon: "credit-card"},
	StatePaid:                {Label: "Pagado", Color: "emerald", Icon: "dollar-sign"},
	StateArchived:            {Label: "Archivado", Color: "slate", Icon: "archive"},
}

// GetDisplayStatus returns label, color and icon for a state
func GetDisplayStatus(state State) DisplayStatus {
	if ds, ok := displayStatuses[state]; ok {
		return ds
	}
	return DisplayStatus{Label: string(state), Color: "gray", Icon: "help-circle"}
}
