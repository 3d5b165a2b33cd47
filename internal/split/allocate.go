package split

import "github.com/zombor/billsplit/internal/money"

// Pools are the shared charges distributed in proportion to spending.
type Pools struct {
	Tax float64
	Tip float64
}

// TaxShare returns one person's share of tax. It returns 0 when
// totalSubtotal is 0. Shares are rounded independently, so the shares of a
// group may drift from tax by a cent per extra person.
func TaxShare(individualSubtotal, totalSubtotal, tax float64) float64 {
	return money.Share(individualSubtotal, totalSubtotal, tax)
}

// TipShare is TaxShare for the tip pool.
func TipShare(individualSubtotal, totalSubtotal, tip float64) float64 {
	return money.Share(individualSubtotal, totalSubtotal, tip)
}

// Subtotal returns the sum of price*quantity over items.
func Subtotal(items []LineItem) float64 {
	lines := make([]float64, len(items))
	for i, item := range items {
		lines[i] = item.Price * float64(item.Quantity)
	}
	return money.Sum(lines...)
}

// IndividualTotal returns what a person owes for items plus shares.
func IndividualTotal(items []LineItem, taxShare, tipShare float64) float64 {
	return money.Sum(Subtotal(items), taxShare, tipShare)
}

// Allocate computes subtotals, shares and owed amounts for a normalized
// draft. A drafted person without items keeps their declared subtotal.
// When the draft declares no total, the total is the sum of the group
// subtotal and both pools.
func Allocate(draft *Draft, pools Pools) *BillSplit {
	subtotals := draft.subtotals()
	groupSubtotal := money.Sum(subtotals...)

	individuals := make([]Individual, len(draft.Individuals))
	for i, person := range draft.Individuals {
		tax := TaxShare(subtotals[i], groupSubtotal, pools.Tax)
		tip := TipShare(subtotals[i], groupSubtotal, pools.Tip)
		items := make([]LineItem, len(person.Items))
		copy(items, person.Items)
		individuals[i] = Individual{
			Name:     person.Name,
			Items:    items,
			Subtotal: subtotals[i],
			TaxShare: tax,
			TipShare: tip,
			Owed:     money.Sum(subtotals[i], tax, tip),
		}
	}

	total := money.Sum(groupSubtotal, pools.Tax, pools.Tip)
	if draft.Total != nil {
		total = money.Round(*draft.Total)
	}

	return &BillSplit{
		Total:       total,
		Individuals: individuals,
	}
}

// GroupSubtotal returns the subtotal Allocate distributes pools over.
func (d *Draft) GroupSubtotal() float64 {
	return money.Sum(d.subtotals()...)
}

func (d *Draft) subtotals() []float64 {
	subtotals := make([]float64, len(d.Individuals))
	for i, person := range d.Individuals {
		if len(person.Items) > 0 {
			subtotals[i] = Subtotal(person.Items)
		} else {
			subtotals[i] = money.Round(person.DeclaredSubtotal)
		}
	}
	return subtotals
}

// DeclaredTax returns the tax the external service attributed in total.
func (d *Draft) DeclaredTax() float64 {
	taxes := make([]float64, len(d.Individuals))
	for i, person := range d.Individuals {
		taxes[i] = person.DeclaredTaxShare
	}
	return money.Sum(taxes...)
}
