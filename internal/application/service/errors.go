package service

import (
	"errors"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
)

var (
	// ErrReceiptNotFound is returned when no receipt matches the id
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrInvalidInput is returned for malformed requests
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateCapture is returned when an active receipt already holds one of the captured images
	ErrDuplicateCapture = errors.New("receipt image already captured")

	// ErrReceiptBlocked is returned when an action needs data that passes the critical checks
	ErrReceiptBlocked = errors.New("receipt data is blocked")

	// ErrInventoryNotAllowed is returned when inventory may not be touched in the current state
	ErrInventoryNotAllowed = errors.New("inventory application not allowed")

	// ErrInventoryPending is returned when archiving a paid receipt whose inventory was never applied
	ErrInventoryPending = errors.New("inventory not applied yet")

	// ErrInventoryAlreadyApplied is returned on a second inventory application
	ErrInventoryAlreadyApplied = port.ErrAlreadyApplied

	// ErrStateConflict is returned when another writer moved the receipt first
	ErrStateConflict = port.ErrStateConflict
)
