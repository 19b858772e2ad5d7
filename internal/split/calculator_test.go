package split

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Allocation", func() {
	var (
		store *Store
		items []Item
	)

	roster := []Participant{
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
	}

	Describe("the pizza scenario", func() {
		var (
			pizza     string
			remaining int
			bills     map[string]*ParticipantBill
		)

		BeforeEach(func() {
			var err error
			items, err = Normalize([]RawLine{
				{Name: "Pizza", UnitPrice: 12.00},
				{Name: "Pizza", UnitPrice: 12.00},
			})
			Expect(err).NotTo(HaveOccurred())
			pizza = items[0].ID

			store = NewStore("Me")
			Expect(store.Initialize(items, roster)).To(Succeed())

			_, err = store.AssignUnit(pizza, []string{"alice"}, false)
			Expect(err).NotTo(HaveOccurred())
			remaining, err = store.AssignUnit(pizza, []string{"alice", "bob"}, true)
			Expect(err).NotTo(HaveOccurred())

			bills = ComputeTotals(store.Items(), store.Participants(), store.Ledger())
		})

		It("should leave nothing to assign", func() {
			Expect(remaining).To(Equal(0))
			Expect(store.IsComplete()).To(BeTrue())
		})

		It("should charge Alice a whole pizza plus half of one", func() {
			expectAmount(bills["alice"].Total, "18.00")
			Expect(bills["alice"].Lines).To(HaveLen(2))
			expectAmount(bills["alice"].Lines[0].ChargedAmount, "12")
			Expect(bills["alice"].Lines[0].SplitCount).To(Equal(1))
			expectAmount(bills["alice"].Lines[1].ChargedAmount, "6")
			expectAmount(bills["alice"].Lines[1].OriginalUnitPrice, "12")
			Expect(bills["alice"].Lines[1].SplitCount).To(Equal(2))
		})

		It("should charge Bob half a pizza", func() {
			expectAmount(bills["bob"].Total, "6.00")
			Expect(bills["bob"].Lines).To(ConsistOf(LineCharge{
				ItemName:          "Pizza",
				ChargedAmount:     bills["bob"].Lines[0].ChargedAmount,
				OriginalUnitPrice: bills["bob"].Lines[0].OriginalUnitPrice,
				SplitCount:        2,
			}))
		})

		It("should give the owner an empty bill", func() {
			Expect(bills).To(HaveKey(OwnerID))
			Expect(bills[OwnerID].Lines).To(BeEmpty())
			Expect(bills[OwnerID].Total.IsZero()).To(BeTrue())
		})

		It("should total the bill at 24.00", func() {
			expectAmount(TotalBill(store.Items()), "24.00")
		})

		It("should reconcile the summary", func() {
			summary := store.Summary()
			Expect(summary.Complete).To(BeTrue())
			Expect(summary.Reconciled()).To(BeTrue())
			Expect(summary.Bills).To(HaveLen(3))
			Expect(summary.Bills[0].ParticipantID).To(Equal(OwnerID))
			Expect(summary.Bills[1].ParticipantID).To(Equal("alice"))
			expectAmount(summary.AssignedTotal, "24")
		})

		It("should be idempotent", func() {
			again := ComputeTotals(store.Items(), store.Participants(), store.Ledger())
			Expect(again).To(Equal(bills))
		})
	})

	Describe("uneven splits", func() {
		BeforeEach(func() {
			var err error
			items, err = Normalize([]RawLine{{Name: "Cake", UnitPrice: 10}})
			Expect(err).NotTo(HaveOccurred())
			store = NewStore("Me")
			Expect(store.Initialize(items, roster)).To(Succeed())
			_, err = store.AssignUnit(items[0].ID, []string{OwnerID, "alice", "bob"}, true)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should divide evenly without redistributing the remainder", func() {
			summary := store.Summary()
			for _, bill := range summary.Bills {
				Expect(bill.Total.Equal(summary.Bills[0].Total)).To(BeTrue())
			}
		})

		It("should stay within tolerance of the bill total", func() {
			summary := store.Summary()
			Expect(summary.Reconciled()).To(BeTrue())
			Expect(summary.Discrepancy().LessThanOrEqual(Tolerance)).To(BeTrue())
		})
	})

	Describe("random assignment sequences", func() {
		It("should keep the bill total fixed and reconcile once complete", func() {
			rng := rand.New(rand.NewSource(42))
			lines := []RawLine{
				{Name: "Beer", UnitPrice: 4.5}, {Name: "Beer", UnitPrice: 4.5}, {Name: "Beer", UnitPrice: 4.5},
				{Name: "Nachos", UnitPrice: 9.99},
				{Name: "Wings", UnitPrice: 13.37}, {Name: "Wings", UnitPrice: 13.37},
				{Name: "Soda", UnitPrice: 2.25},
			}
			people := []Participant{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}}

			for round := 0; round < 20; round++ {
				items, err := Normalize(lines)
				Expect(err).NotTo(HaveOccurred())
				store := NewStore("Me")
				Expect(store.Initialize(items, people)).To(Succeed())
				want := TotalBill(store.Items())
				roster := store.Participants()

				for !store.IsComplete() {
					current := store.Items()
					item := current[rng.Intn(len(current))]
					n := 1 + rng.Intn(len(roster))
					perm := rng.Perm(len(roster))[:n]
					ids := make([]string, n)
					for i, p := range perm {
						ids[i] = roster[p].ID
					}

					_, err := store.AssignUnit(item.ID, ids, n > 1)
					if item.RemainingQuantity == 0 {
						Expect(err).To(MatchError(ErrNoRemainingQuantity))
					} else {
						Expect(err).NotTo(HaveOccurred())
					}
					Expect(TotalBill(store.Items()).Equal(want)).To(BeTrue())
				}

				summary := store.Summary()
				Expect(summary.TotalBill.Equal(want)).To(BeTrue())
				Expect(summary.Reconciled()).To(BeTrue(), "discrepancy %s", summary.Discrepancy())
			}
		})
	})

	Describe("contract violations", func() {
		BeforeEach(func() {
			var err error
			items, err = Normalize([]RawLine{{Name: "Tea", UnitPrice: 2}})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should panic when a record names someone outside the roster", func() {
			ledger := Ledger{items[0].ID: {{ItemID: items[0].ID, ParticipantIDs: []string{"ghost"}, SplitCount: 1}}}
			Expect(func() { ComputeTotals(items, roster, ledger) }).To(PanicWith(MatchError(ErrInvariantViolation)))
		})

		It("should panic when the ledger references an unknown item", func() {
			ledger := Ledger{"item-ghost": {{ItemID: "item-ghost", ParticipantIDs: []string{"alice"}, SplitCount: 1}}}
			Expect(func() { ComputeTotals(items, roster, ledger) }).To(PanicWith(MatchError(ErrInvariantViolation)))
		})
	})

	Describe("TotalBill", func() {
		It("should multiply unit price by quantity", func() {
			items, err := Normalize([]RawLine{
				{Name: "Beer", UnitPrice: 4.5}, {Name: "Beer", UnitPrice: 4.5},
				{Name: "Fries", UnitPrice: 3.25},
			})
			Expect(err).NotTo(HaveOccurred())
			expectAmount(TotalBill(items), "12.25")
		})

		It("should be zero for no items", func() {
			Expect(TotalBill(nil).IsZero()).To(BeTrue())
		})
	})
})
