// Package split allocates a receipt across named people. It rounds every
// amount through package money and never performs I/O.
package split

// LineItem is one purchased item. Price is per unit.
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category,omitempty"`
}

// Individual is one participant in a split.
type Individual struct {
	Name     string     `json:"name"`
	Items    []LineItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	TaxShare float64    `json:"taxShare"`
	TipShare float64    `json:"tipShare"`
	Owed     float64    `json:"owed"`
}

// BillSplit is the result of one split request. It is built fresh for every
// request and not mutated afterwards.
type BillSplit struct {
	Total       float64      `json:"total"`
	Individuals []Individual `json:"individuals"`
}

// Owed returns each individual's owed amount, in order.
func (b *BillSplit) Owed() []float64 {
	owed := make([]float64, len(b.Individuals))
	for i, ind := range b.Individuals {
		owed[i] = ind.Owed
	}
	return owed
}
