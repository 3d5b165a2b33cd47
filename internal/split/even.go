package split

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/billsplit/internal/money"
)

// Even divides total equally. The first name absorbs the rounding
// remainder so the owed amounts sum to total exactly. names governs how
// many Individuals are returned; numberOfPeople is the divisor.
func Even(total float64, numberOfPeople int, names []string) []Individual {
	if numberOfPeople <= 0 || len(names) == 0 {
		return []Individual{}
	}

	people := decimal.NewFromInt(int64(numberOfPeople))
	amount := money.Decimal(total)
	perPerson := amount.Div(people).Round(2)
	remainder := amount.Sub(perPerson.Mul(people)).Round(2)

	individuals := make([]Individual, len(names))
	for i, name := range names {
		owed := perPerson
		if i == 0 {
			owed = perPerson.Add(remainder)
		}
		individuals[i] = Individual{
			Name:     name,
			Items:    []LineItem{},
			Subtotal: perPerson.InexactFloat64(),
			Owed:     owed.InexactFloat64(),
		}
	}
	return individuals
}
