package split

import (
	"fmt"
	"strings"
)

// Store is the single source of truth for item consumption and the
// assignment ledger of one session. It is not safe for concurrent use; the
// owning session serializes access.
type Store struct {
	ownerName    string
	items        []Item
	itemIndex    map[string]int
	participants []Participant
	roster       map[string]struct{}
	ledger       Ledger
}

// NewStore creates an empty store. The owner is injected into the roster
// under OwnerID with ownerName as its label.
func NewStore(ownerName string) *Store {
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		ownerName = DefaultOwnerName
	}
	return &Store{ownerName: ownerName}
}

// Initialize sets up the store for a session, replacing any previous state.
func (s *Store) Initialize(items []Item, participants []Participant) error {
	if len(participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidRoster)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: no items to assign", ErrEmptyReceipt)
	}

	roster := make(map[string]struct{}, len(participants)+1)
	for _, p := range participants {
		if p.ID == "" {
			return fmt.Errorf("%w: participant %q has an empty id", ErrInvalidRoster, p.Name)
		}
		if _, dup := roster[p.ID]; dup {
			return fmt.Errorf("%w: duplicate participant id %q", ErrInvalidRoster, p.ID)
		}
		roster[p.ID] = struct{}{}
	}

	ordered := make([]Participant, 0, len(participants)+1)
	if _, ok := roster[OwnerID]; !ok {
		ordered = append(ordered, Participant{ID: OwnerID, Name: s.ownerName})
		roster[OwnerID] = struct{}{}
	}
	ordered = append(ordered, participants...)

	itemIndex := make(map[string]int, len(items))
	copied := make([]Item, len(items))
	for i, item := range items {
		if _, dup := itemIndex[item.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidLineItem, item.ID)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrInvalidLineItem, item.ID, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %q has price %s", ErrInvalidLineItem, item.ID, item.UnitPrice)
		}
		item.RemainingQuantity = item.Quantity
		copied[i] = item
		itemIndex[item.ID] = i
	}

	s.items = copied
	s.itemIndex = itemIndex
	s.participants = ordered
	s.roster = roster
	s.ledger = make(Ledger, len(items))
	return nil
}

// AssignUnit records one unit of itemID as consumed by participantIDs. A
// whole assignment takes exactly one participant; a split assignment divides
// the unit among all of them. Every successful call consumes exactly one unit
// regardless of how many participants share it. All validation happens
// before any state changes.
func (s *Store) AssignUnit(itemID string, participantIDs []string, isSplit bool) (int, error) {
	idx, ok := s.itemIndex[itemID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownItem, itemID)
	}
	if len(participantIDs) == 0 {
		return 0, fmt.Errorf("%w: no participants given for item %q", ErrInvalidAssignment, itemID)
	}
	if !isSplit && len(participantIDs) != 1 {
		return 0, fmt.Errorf("%w: whole assignment of item %q needs exactly one participant, got %d",
			ErrInvalidAssignment, itemID, len(participantIDs))
	}

	seen := make(map[string]struct{}, len(participantIDs))
	for _, pid := range participantIDs {
		if _, ok := s.roster[pid]; !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownParticipant, pid)
		}
		if _, dup := seen[pid]; dup {
			return 0, fmt.Errorf("%w: participant %q listed twice for item %q", ErrInvalidAssignment, pid, itemID)
		}
		seen[pid] = struct{}{}
	}

	item := &s.items[idx]
	if item.RemainingQuantity == 0 {
		return 0, fmt.Errorf("%w: item %q (%s) is fully assigned", ErrNoRemainingQuantity, itemID, item.Name)
	}

	s.ledger[itemID] = append(s.ledger[itemID], AssignmentRecord{
		ItemID:         itemID,
		ParticipantIDs: append([]string(nil), participantIDs...),
		SplitCount:     len(participantIDs),
	})
	item.RemainingQuantity--

	s.checkItem(*item)
	return item.RemainingQuantity, nil
}

// RemainingOf returns the number of unassigned units of itemID.
func (s *Store) RemainingOf(itemID string) (int, error) {
	idx, ok := s.itemIndex[itemID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownItem, itemID)
	}
	return s.items[idx].RemainingQuantity, nil
}

// IsComplete reports whether every item has been fully assigned. An
// uninitialized store is never complete.
func (s *Store) IsComplete() bool {
	return len(s.items) > 0 && IsComplete(s.items)
}

// Reset clears the ledger and returns every item to its full quantity.
func (s *Store) Reset() {
	for i := range s.items {
		s.items[i].RemainingQuantity = s.items[i].Quantity
	}
	s.ledger = make(Ledger, len(s.items))
}

// Items returns a copy of the items in receipt order.
func (s *Store) Items() []Item {
	return append([]Item(nil), s.items...)
}

// Participants returns the roster, owner included, in roster order.
func (s *Store) Participants() []Participant {
	return append([]Participant(nil), s.participants...)
}

// Ledger returns a deep copy of the assignment ledger.
func (s *Store) Ledger() Ledger {
	return s.ledger.Clone()
}

// Progress returns assigned and total unit counts across all items.
func (s *Store) Progress() (assigned, total int) {
	for _, item := range s.items {
		total += item.Quantity
		assigned += item.Quantity - item.RemainingQuantity
	}
	return assigned, total
}

// UnitCounts returns, per participant, how many records name them.
func (s *Store) UnitCounts() map[string]int {
	counts := make(map[string]int, len(s.participants))
	for _, p := range s.participants {
		counts[p.ID] = 0
	}
	for _, records := range s.ledger {
		for _, r := range records {
			for _, pid := range r.ParticipantIDs {
				counts[pid]++
			}
		}
	}
	return counts
}

// checkItem panics if the ledger and the item's remaining quantity disagree.
func (s *Store) checkItem(item Item) {
	if item.RemainingQuantity < 0 || item.RemainingQuantity > item.Quantity {
		panic(fmt.Errorf("%w: item %q remaining %d outside [0, %d]",
			ErrInvariantViolation, item.ID, item.RemainingQuantity, item.Quantity))
	}
	if consumed := len(s.ledger[item.ID]); consumed != item.Quantity-item.RemainingQuantity {
		panic(fmt.Errorf("%w: item %q has %d records but %d units consumed",
			ErrInvariantViolation, item.ID, consumed, item.Quantity-item.RemainingQuantity))
	}
}

// Summary computes the current bill from the store's state.
func (s *Store) Summary() Summary {
	return Summarize(s.items, s.participants, s.ledger)
}
