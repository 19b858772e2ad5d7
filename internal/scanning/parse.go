package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

const unknownItemName = "Unknown Item"

// maxLineQuantity caps how far a single "quantity" field is expanded.
const maxLineQuantity = 100

// rawLineItem mirrors the JSON the models are asked to produce. Quantity is
// optional; models sometimes report "Coffee x2" as one line with quantity 2.
type rawLineItem struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Quantity int      `json:"quantity"`
}

type rawReceipt struct {
	Merchant string        `json:"merchant"`
	Items    []rawLineItem `json:"items"`
}

// stripCodeFence removes markdown code fences models like to wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON parses a model response into receipt data. It accepts the
// object form {"merchant": ..., "items": [...]} as well as a bare array of
// items.
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripCodeFence(text)

	var raw rawReceipt
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	switch {
	case arrStart != -1 && (objStart == -1 || arrStart < objStart):
		end := strings.LastIndex(text, "]")
		if end < arrStart {
			return nil, fmt.Errorf("invalid JSON array in response")
		}
		if err := json.Unmarshal([]byte(text[arrStart:end+1]), &raw.Items); err != nil {
			return nil, fmt.Errorf("unmarshaling json: %w", err)
		}
	case objStart != -1:
		end := strings.LastIndex(text, "}")
		if end < objStart {
			return nil, fmt.Errorf("invalid JSON object in response")
		}
		if err := json.Unmarshal([]byte(text[objStart:end+1]), &raw); err != nil {
			return nil, fmt.Errorf("unmarshaling json: %w", err)
		}
	default:
		return nil, fmt.Errorf("no JSON found in response")
	}

	data := &ReceiptData{
		Merchant: strings.TrimSpace(raw.Merchant),
		Items:    make([]LineItem, 0, len(raw.Items)),
	}

	for _, item := range raw.Items {
		// Lines without a price are headers, subtotals or noise
		if item.Price == nil {
			continue
		}

		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = unknownItemName
		}

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		if quantity > maxLineQuantity {
			return nil, fmt.Errorf("item %q has implausible quantity %d", name, quantity)
		}

		for i := 0; i < quantity; i++ {
			data.Items = append(data.Items, LineItem{Name: name, Price: *item.Price})
		}
	}

	return data, nil
}
