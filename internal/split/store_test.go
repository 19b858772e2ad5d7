package split

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		store        *Store
		items        []Item
		participants []Participant
		pizza        string
		salad        string
	)

	BeforeEach(func() {
		var err error
		items, err = Normalize([]RawLine{
			{Name: "Pizza", UnitPrice: 12},
			{Name: "Pizza", UnitPrice: 12},
			{Name: "Salad", UnitPrice: 8},
		})
		Expect(err).NotTo(HaveOccurred())
		pizza, salad = items[0].ID, items[1].ID

		participants = []Participant{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob"},
		}
		store = NewStore("Owner")
	})

	Describe("Initialize", func() {
		var err error

		JustBeforeEach(func() {
			err = store.Initialize(items, participants)
		})

		When("the roster and receipt are valid", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should inject the owner first", func() {
				roster := store.Participants()
				Expect(roster).To(HaveLen(3))
				Expect(roster[0]).To(Equal(Participant{ID: OwnerID, Name: "Owner"}))
				Expect(roster[1].ID).To(Equal("alice"))
			})

			It("should start every item unassigned", func() {
				for _, item := range store.Items() {
					Expect(item.RemainingQuantity).To(Equal(item.Quantity))
				}
				Expect(store.IsComplete()).To(BeFalse())
			})
		})

		When("the owner is supplied under the reserved id", func() {
			BeforeEach(func() {
				participants = append([]Participant{{ID: OwnerID, Name: "Me, Myself"}}, participants...)
			})

			It("should keep exactly one owner", func() {
				Expect(err).NotTo(HaveOccurred())
				owners := 0
				for _, p := range store.Participants() {
					if p.ID == OwnerID {
						owners++
						Expect(p.Name).To(Equal("Me, Myself"))
					}
				}
				Expect(owners).To(Equal(1))
			})
		})

		When("the owner is supplied twice", func() {
			BeforeEach(func() {
				participants = append(participants, Participant{ID: OwnerID, Name: "A"}, Participant{ID: OwnerID, Name: "B"})
			})

			It("should reject the roster", func() {
				Expect(err).To(MatchError(ErrInvalidRoster))
			})
		})

		When("the roster is empty", func() {
			BeforeEach(func() {
				participants = nil
			})

			It("should fail with InvalidRoster even though the receipt is valid", func() {
				Expect(err).To(MatchError(ErrInvalidRoster))
			})
		})

		When("participant ids repeat", func() {
			BeforeEach(func() {
				participants = append(participants, Participant{ID: "bob", Name: "Other Bob"})
			})

			It("should fail with InvalidRoster", func() {
				Expect(err).To(MatchError(ErrInvalidRoster))
				Expect(err.Error()).To(ContainSubstring("bob"))
			})
		})

		When("a participant has no id", func() {
			BeforeEach(func() {
				participants = append(participants, Participant{Name: "Nobody"})
			})

			It("should fail with InvalidRoster", func() {
				Expect(err).To(MatchError(ErrInvalidRoster))
			})
		})

		When("there are no items", func() {
			BeforeEach(func() {
				items = nil
			})

			It("should fail with EmptyReceipt", func() {
				Expect(err).To(MatchError(ErrEmptyReceipt))
			})
		})
	})

	Describe("AssignUnit", func() {
		BeforeEach(func() {
			Expect(store.Initialize(items, participants)).To(Succeed())
		})

		When("assigning a whole unit", func() {
			It("should consume one unit and return what is left", func() {
				remaining, err := store.AssignUnit(pizza, []string{"alice"}, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(remaining).To(Equal(1))
				Expect(store.Items()[0].State()).To(Equal(PartiallyAssigned))
			})

			It("should record a single-participant record", func() {
				_, err := store.AssignUnit(pizza, []string{"alice"}, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(store.Ledger()[pizza]).To(Equal([]AssignmentRecord{
					{ItemID: pizza, ParticipantIDs: []string{"alice"}, SplitCount: 1},
				}))
			})
		})

		When("splitting a unit between several participants", func() {
			It("should still consume exactly one unit", func() {
				remaining, err := store.AssignUnit(pizza, []string{"alice", "bob", OwnerID}, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(remaining).To(Equal(1))
				Expect(store.Ledger()[pizza][0].SplitCount).To(Equal(3))
			})

			It("should refuse to split past the purchased quantity", func() {
				_, err := store.AssignUnit(pizza, []string{"alice", "bob"}, true)
				Expect(err).NotTo(HaveOccurred())
				_, err = store.AssignUnit(pizza, []string{"alice", "bob"}, true)
				Expect(err).NotTo(HaveOccurred())

				_, err = store.AssignUnit(pizza, []string{"alice", "bob"}, true)
				Expect(err).To(MatchError(ErrNoRemainingQuantity))
				Expect(store.Ledger()[pizza]).To(HaveLen(2))
			})
		})

		When("a split names a single participant", func() {
			It("should behave like a whole assignment", func() {
				remaining, err := store.AssignUnit(salad, []string{"bob"}, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(remaining).To(Equal(0))
				Expect(store.Ledger()[salad][0].SplitCount).To(Equal(1))
				Expect(store.Items()[1].State()).To(Equal(FullyAssigned))
			})
		})

		When("the item has nothing left", func() {
			BeforeEach(func() {
				_, err := store.AssignUnit(salad, []string{"bob"}, false)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should fail and leave the ledger unchanged", func() {
				before := store.Ledger()
				_, err := store.AssignUnit(salad, []string{"alice"}, false)
				Expect(err).To(MatchError(ErrNoRemainingQuantity))
				Expect(store.Ledger()).To(Equal(before))
				Expect(store.RemainingOf(salad)).To(Equal(0))
			})
		})

		DescribeTable("rejected before any state changes",
			func(itemID func() string, ids []string, isSplit bool, want error) {
				before := store.Ledger()
				_, err := store.AssignUnit(itemID(), ids, isSplit)
				Expect(err).To(MatchError(want))
				Expect(store.Ledger()).To(Equal(before))
				assigned, _ := store.Progress()
				Expect(assigned).To(BeZero())
			},
			Entry("empty participant list", func() string { return pizza }, []string{}, false, ErrInvalidAssignment),
			Entry("empty split list", func() string { return pizza }, []string(nil), true, ErrInvalidAssignment),
			Entry("whole assignment to two people", func() string { return pizza }, []string{"alice", "bob"}, false, ErrInvalidAssignment),
			Entry("duplicate participant in a split", func() string { return pizza }, []string{"alice", "alice"}, true, ErrInvalidAssignment),
			Entry("unknown participant", func() string { return pizza }, []string{"mallory"}, false, ErrUnknownParticipant),
			Entry("unknown participant among known", func() string { return pizza }, []string{"alice", "mallory"}, true, ErrUnknownParticipant),
			Entry("unknown item", func() string { return "item-missing" }, []string{"alice"}, false, ErrUnknownItem),
		)

		It("should keep the caller's slice independent from the ledger", func() {
			ids := []string{"alice", "bob"}
			_, err := store.AssignUnit(pizza, ids, true)
			Expect(err).NotTo(HaveOccurred())
			ids[0] = "mallory"
			Expect(store.Ledger()[pizza][0].ParticipantIDs).To(Equal([]string{"alice", "bob"}))
		})
	})

	Describe("quantity invariants", func() {
		BeforeEach(func() {
			Expect(store.Initialize(items, participants)).To(Succeed())
		})

		It("should keep consumed units equal to the number of records", func() {
			calls := []struct {
				item    string
				ids     []string
				isSplit bool
			}{
				{pizza, []string{"alice"}, false},
				{salad, []string{"alice", "bob"}, true},
				{pizza, []string{OwnerID, "bob"}, true},
				{pizza, []string{"bob"}, false},
				{salad, []string{"alice"}, false},
			}
			for _, c := range calls {
				_, _ = store.AssignUnit(c.item, c.ids, c.isSplit)

				ledger := store.Ledger()
				for _, item := range store.Items() {
					Expect(item.RemainingQuantity).To(BeNumerically(">=", 0))
					Expect(item.RemainingQuantity).To(BeNumerically("<=", item.Quantity))
					Expect(item.Quantity - item.RemainingQuantity).To(Equal(len(ledger[item.ID])))
				}
			}
			Expect(store.IsComplete()).To(BeTrue())
			Expect(IsComplete(store.Items())).To(BeTrue())
		})
	})

	Describe("RemainingOf", func() {
		BeforeEach(func() {
			Expect(store.Initialize(items, participants)).To(Succeed())
		})

		It("should fail for an unknown item", func() {
			_, err := store.RemainingOf("item-nope")
			Expect(err).To(MatchError(ErrUnknownItem))
		})
	})

	Describe("Reset", func() {
		BeforeEach(func() {
			Expect(store.Initialize(items, participants)).To(Succeed())
		})

		It("should clear the ledger and restore quantities", func() {
			_, err := store.AssignUnit(pizza, []string{"alice"}, false)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AssignUnit(salad, []string{"alice", "bob"}, true)
			Expect(err).NotTo(HaveOccurred())

			store.Reset()

			Expect(store.Ledger()).To(BeEmpty())
			for _, item := range store.Items() {
				Expect(item.State()).To(Equal(Unassigned))
			}
			Expect(store.Participants()).To(HaveLen(3))
		})

		It("should reproduce the same ledger and totals when replayed", func() {
			replay := func() {
				_, err := store.AssignUnit(pizza, []string{"alice"}, false)
				Expect(err).NotTo(HaveOccurred())
				_, err = store.AssignUnit(pizza, []string{"alice", "bob"}, true)
				Expect(err).NotTo(HaveOccurred())
				_, err = store.AssignUnit(salad, []string{OwnerID, "alice", "bob"}, true)
				Expect(err).NotTo(HaveOccurred())
			}

			replay()
			firstLedger := store.Ledger()
			firstSummary := store.Summary()

			store.Reset()
			replay()

			Expect(store.Ledger()).To(Equal(firstLedger))
			Expect(store.Summary()).To(Equal(firstSummary))
		})
	})

	Describe("Progress and UnitCounts", func() {
		BeforeEach(func() {
			Expect(store.Initialize(items, participants)).To(Succeed())
		})

		It("should count units and per-participant appearances", func() {
			_, err := store.AssignUnit(pizza, []string{"alice", "bob"}, true)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AssignUnit(salad, []string{"alice"}, false)
			Expect(err).NotTo(HaveOccurred())

			assigned, total := store.Progress()
			Expect(assigned).To(Equal(2))
			Expect(total).To(Equal(3))

			Expect(store.UnitCounts()).To(Equal(map[string]int{
				OwnerID: 0,
				"alice": 2,
				"bob":   1,
			}))
		})
	})

	Describe("an uninitialized store", func() {
		It("should never be complete", func() {
			Expect(NewStore("").IsComplete()).To(BeFalse())
		})

		It("should name the owner with the default label", func() {
			s := NewStore("  ")
			Expect(s.Initialize(items, participants)).To(Succeed())
			Expect(s.Participants()[0].Name).To(Equal(DefaultOwnerName))
		})
	})
})

var _ = Describe("ItemState", func() {
	DescribeTable("should parse the names it renders",
		func(state ItemState, name string) {
			text, err := state.MarshalText()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(Equal(name))

			var parsed ItemState
			Expect(parsed.UnmarshalText(text)).To(Succeed())
			Expect(parsed).To(Equal(state))
		},
		Entry("unassigned", Unassigned, "unassigned"),
		Entry("partially assigned", PartiallyAssigned, "partially_assigned"),
		Entry("fully assigned", FullyAssigned, "fully_assigned"),
	)

	It("should reject an unknown name", func() {
		var parsed ItemState
		Expect(parsed.UnmarshalText([]byte("lost"))).To(MatchError(`unknown item state "lost"`))
	})
})
