// Package split implements the item assignment and split allocation engine:
// receipt lines are collapsed into items, units of those items are assigned
// to participants, and the resulting ledger is turned into per-participant
// bills.
package split

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OwnerID is the reserved participant id for the person running the session.
const OwnerID = "self"

// DefaultOwnerName is used when the store is not given an owner display name.
const DefaultOwnerName = "Me"

// RawLine is a single line as extracted from a receipt, before grouping.
type RawLine struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
}

// Item is one distinct priced product line with its purchased quantity.
type Item struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
}

// State reports where the item is in its assignment lifecycle.
func (i Item) State() ItemState {
	switch {
	case i.RemainingQuantity == i.Quantity:
		return Unassigned
	case i.RemainingQuantity == 0:
		return FullyAssigned
	default:
		return PartiallyAssigned
	}
}

// Participant is a person sharing the bill.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssignmentRecord is one unit of an item consumed by one AssignUnit call.
type AssignmentRecord struct {
	ItemID         string   `json:"item_id"`
	ParticipantIDs []string `json:"participant_ids"`
	SplitCount     int      `json:"split_count"`
}

// Ledger maps an item id to its records in insertion order.
type Ledger map[string][]AssignmentRecord

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for itemID, records := range l {
		copied := make([]AssignmentRecord, len(records))
		for i, r := range records {
			copied[i] = AssignmentRecord{
				ItemID:         r.ItemID,
				ParticipantIDs: append([]string(nil), r.ParticipantIDs...),
				SplitCount:     r.SplitCount,
			}
		}
		out[itemID] = copied
	}
	return out
}

// ItemState is the per-item assignment state.
type ItemState int

const (
	Unassigned ItemState = iota
	PartiallyAssigned
	FullyAssigned
)

func (s ItemState) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case PartiallyAssigned:
		return "partially_assigned"
	case FullyAssigned:
		return "fully_assigned"
	default:
		return fmt.Sprintf("ItemState(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON output.
func (s ItemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ItemState) UnmarshalText(text []byte) error {
	for _, state := range []ItemState{Unassigned, PartiallyAssigned, FullyAssigned} {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown item state %q", text)
}

// IsComplete reports whether every item has been fully assigned.
func IsComplete(items []Item) bool {
	for _, item := range items {
		if item.RemainingQuantity != 0 {
			return false
		}
	}
	return true
}
