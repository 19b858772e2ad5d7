package split

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// itemKey identifies an item. Two lines are the same item iff both fields
// match exactly.
type itemKey struct {
	name  string
	price string
}

// id hashes the key into a stable item identifier. The name is length
// prefixed so that no choice of name can collide with another key's bytes.
func (k itemKey) id(salt uint64) string {
	var buf [8]byte
	d := xxhash.New()
	binary.BigEndian.PutUint64(buf[:], uint64(len(k.name)))
	d.Write(buf[:])
	d.WriteString(k.name)
	d.WriteString(k.price)
	if salt > 0 {
		binary.BigEndian.PutUint64(buf[:], salt)
		d.Write(buf[:])
	}
	return fmt.Sprintf("item-%016x", d.Sum64())
}

// validatePrice converts a raw price, rejecting negative and non-finite values.
func validatePrice(index int, line RawLine) (decimal.Decimal, error) {
	p := line.UnitPrice
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: line %d (%q) has price %v", ErrInvalidLineItem, index, line.Name, p)
	}
	return decimal.NewFromFloat(p), nil
}

// Normalize collapses raw lines sharing name and price into items, in the
// order each item was first seen. It fails on the first invalid line.
func Normalize(lines []RawLine) ([]Item, error) {
	items, errs := normalize(lines)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return items, nil
}

// NormalizeLenient behaves like Normalize but drops invalid lines, returning
// one error per dropped line alongside the items built from the rest.
func NormalizeLenient(lines []RawLine) ([]Item, []error) {
	return normalize(lines)
}

func normalize(lines []RawLine) ([]Item, []error) {
	items := make([]Item, 0, len(lines))
	byKey := make(map[itemKey]int)
	usedIDs := make(map[string]struct{})
	var errs []error

	for i, line := range lines {
		price, err := validatePrice(i, line)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		key := itemKey{name: line.Name, price: price.String()}
		if idx, ok := byKey[key]; ok {
			items[idx].Quantity++
			items[idx].RemainingQuantity++
			continue
		}

		id := key.id(0)
		for salt := uint64(1); ; salt++ {
			if _, taken := usedIDs[id]; !taken {
				break
			}
			id = key.id(salt)
		}
		usedIDs[id] = struct{}{}

		byKey[key] = len(items)
		items = append(items, Item{
			ID:                id,
			Name:              key.name,
			UnitPrice:         price,
			Quantity:          1,
			RemainingQuantity: 1,
		})
	}

	return items, errs
}
