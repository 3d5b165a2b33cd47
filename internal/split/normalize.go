package split

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Draft is an allocation proposed by the external service after its shape
// has been checked. Declared amounts are the service's own numbers; they are
// kept for comparison and are not trusted for arithmetic.
type Draft struct {
	Total       *float64
	Individuals []DraftIndividual
}

// DraftIndividual is one proposed participant.
type DraftIndividual struct {
	Name             string
	Items            []LineItem
	DeclaredSubtotal float64
	DeclaredTaxShare float64
	DeclaredTipShare float64
	DeclaredOwed     float64
}

type rawSplit struct {
	Total       *float64        `json:"total"`
	Individuals json.RawMessage `json:"individuals"`
}

type rawIndividual struct {
	Name     string    `json:"name"`
	Items    []rawItem `json:"items"`
	Subtotal *float64  `json:"subtotal"`
	TaxShare *float64  `json:"taxShare"`
	TipShare *float64  `json:"tipShare"`
	Owed     *float64  `json:"owed"`
}

type rawItem struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity"`
	Category string   `json:"category"`
}

// Normalize checks an untrusted split payload and converts it to a Draft.
// It fails with ErrMalformedResponse when individuals is missing or not a
// list, and with ErrEmptyAllocation when the list is empty.
func Normalize(payload []byte) (*Draft, error) {
	var raw rawSplit
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, malformed(payload, "decoding payload: %v", err)
	}

	list := bytes.TrimSpace(raw.Individuals)
	if len(list) == 0 || bytes.Equal(list, []byte("null")) {
		return nil, malformed(payload, "missing individuals list")
	}
	if list[0] != '[' {
		return nil, malformed(payload, "individuals is not a list")
	}

	var people []rawIndividual
	if err := json.Unmarshal(list, &people); err != nil {
		return nil, malformed(payload, "decoding individuals: %v", err)
	}
	if len(people) == 0 {
		return nil, &NormalizeError{
			Err:     ErrEmptyAllocation,
			Reason:  "individuals list is empty",
			Snippet: snippet(payload),
		}
	}

	if raw.Total != nil && (*raw.Total < 0 || !isFinite(*raw.Total)) {
		return nil, malformed(payload, "total %v is not a valid amount", *raw.Total)
	}

	draft := &Draft{
		Total:       raw.Total,
		Individuals: make([]DraftIndividual, len(people)),
	}
	for i, person := range people {
		name := strings.TrimSpace(person.Name)
		if name == "" {
			name = fmt.Sprintf("Person %d", i+1)
		}

		items := make([]LineItem, len(person.Items))
		for j, item := range person.Items {
			lineItem, err := normalizeItem(item)
			if err != nil {
				return nil, malformed(payload, "%s item %d: %v", name, j+1, err)
			}
			items[j] = lineItem
		}

		draft.Individuals[i] = DraftIndividual{
			Name:             name,
			Items:            items,
			DeclaredSubtotal: valueOrZero(person.Subtotal),
			DeclaredTaxShare: valueOrZero(person.TaxShare),
			DeclaredTipShare: valueOrZero(person.TipShare),
			DeclaredOwed:     valueOrZero(person.Owed),
		}
	}

	return draft, nil
}

func normalizeItem(item rawItem) (LineItem, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return LineItem{}, fmt.Errorf("missing name")
	}
	if item.Price == nil {
		return LineItem{}, fmt.Errorf("%q has no price", name)
	}
	if *item.Price < 0 || !isFinite(*item.Price) {
		return LineItem{}, fmt.Errorf("%q has invalid price %v", name, *item.Price)
	}

	quantity := 1
	if item.Quantity != nil {
		q := *item.Quantity
		if q < 1 || q != math.Trunc(q) || q > math.MaxInt32 {
			return LineItem{}, fmt.Errorf("%q has invalid quantity %v", name, q)
		}
		quantity = int(q)
	}

	return LineItem{
		Name:     name,
		Price:    *item.Price,
		Quantity: quantity,
		Category: strings.TrimSpace(item.Category),
	}, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil || !isFinite(*v) {
		return 0
	}
	return *v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
