package port

import "context"

// ReceiptImage is one captured page of a receipt
type ReceiptImage struct {
	Name     string
	MimeType string
	Data     []byte
}

// ReceiptExtractor reads receipt images with a vision model and returns its raw JSON output.
// The output is untrusted; callers parse it leniently.
type ReceiptExtractor interface {
	Extract(ctx context.Context, images []ReceiptImage) ([]byte, error)
}
