package split

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance bounds the difference between the bill total and the sum of
// participant totals once every unit is assigned. Even splits are divided at
// decimal.DivisionPrecision without redistributing the remainder, so a
// third of 10.00 summed three times misses 10.00 in the sixteenth place.
var Tolerance = decimal.New(1, -9)

// LineCharge is one participant's share of one assignment record.
type LineCharge struct {
	ItemName          string          `json:"item_name"`
	ChargedAmount     decimal.Decimal `json:"charged_amount"`
	OriginalUnitPrice decimal.Decimal `json:"original_unit_price"`
	SplitCount        int             `json:"split_count"`
}

// ParticipantBill is what one participant owes, line by line.
type ParticipantBill struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Lines         []LineCharge    `json:"lines"`
	Total         decimal.Decimal `json:"total"`
}

// Summary is the ordered, renderable result of a session.
type Summary struct {
	Bills         []ParticipantBill `json:"bills"`
	TotalBill     decimal.Decimal   `json:"total_bill"`
	AssignedTotal decimal.Decimal   `json:"assigned_total"`
	Complete      bool              `json:"complete"`
}

// Discrepancy is the absolute difference between the bill total and what
// has been charged to participants.
func (s Summary) Discrepancy() decimal.Decimal {
	return s.TotalBill.Sub(s.AssignedTotal).Abs()
}

// Reconciled reports whether participant totals cover the bill within
// Tolerance.
func (s Summary) Reconciled() bool {
	return s.Discrepancy().LessThanOrEqual(Tolerance)
}

// TotalBill is the sum of unit price times quantity over all items. It does
// not depend on assignment state.
func TotalBill(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ComputeTotals charges every ledger record to its participants. Whole units
// cost the full unit price; split units cost unitPrice / splitCount to each
// sharer. Every roster participant has an entry, even with nothing assigned.
// Lines follow receipt item order, then ledger order within an item.
func ComputeTotals(items []Item, participants []Participant, ledger Ledger) map[string]*ParticipantBill {
	bills := make(map[string]*ParticipantBill, len(participants))
	for _, p := range participants {
		bills[p.ID] = &ParticipantBill{
			ParticipantID: p.ID,
			Name:          p.Name,
			Lines:         []LineCharge{},
			Total:         decimal.Zero,
		}
	}

	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
		for _, record := range ledger[item.ID] {
			charge := item.UnitPrice
			if record.SplitCount > 1 {
				charge = item.UnitPrice.Div(decimal.NewFromInt(int64(record.SplitCount)))
			}
			for _, pid := range record.ParticipantIDs {
				bill, ok := bills[pid]
				if !ok {
					panic(fmt.Errorf("%w: record for item %q names participant %q outside the roster",
						ErrInvariantViolation, item.ID, pid))
				}
				bill.Lines = append(bill.Lines, LineCharge{
					ItemName:          item.Name,
					ChargedAmount:     charge,
					OriginalUnitPrice: item.UnitPrice,
					SplitCount:        record.SplitCount,
				})
				bill.Total = bill.Total.Add(charge)
			}
		}
	}

	for itemID := range ledger {
		if _, ok := known[itemID]; !ok {
			panic(fmt.Errorf("%w: ledger references unknown item %q", ErrInvariantViolation, itemID))
		}
	}

	return bills
}

// Summarize computes totals and orders them by roster position.
func Summarize(items []Item, participants []Participant, ledger Ledger) Summary {
	bills := ComputeTotals(items, participants, ledger)

	summary := Summary{
		Bills:         make([]ParticipantBill, 0, len(participants)),
		TotalBill:     TotalBill(items),
		AssignedTotal: decimal.Zero,
		Complete:      len(items) > 0 && IsComplete(items),
	}
	for _, p := range participants {
		bill := bills[p.ID]
		summary.Bills = append(summary.Bills, *bill)
		summary.AssignedTotal = summary.AssignedTotal.Add(bill.Total)
	}
	return summary
}
