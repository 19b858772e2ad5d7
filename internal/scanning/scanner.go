package scanning

import "context"

// LineItem is one purchased unit as read from the receipt.
type LineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ReceiptData contains the line items extracted from a receipt
type ReceiptData struct {
	Merchant string     `json:"merchant,omitempty"`
	Items    []LineItem `json:"items"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its line items
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
