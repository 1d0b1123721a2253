package settlement

import (
	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// ChargeEvent is one monthly occurrence of an expense. Amount is in minor units.
type ChargeEvent struct {
	ExpenseID       uuid.UUID
	Period          ledger.Month
	Currency        money.Currency
	Amount          int64
	PayerID         string
	InvolvedUserIDs []string
	SplitType       ledger.SplitType
	SplitRatios     map[string]decimal.Decimal
}

// Expand turns an expense into exactly e.Installments charge events on consecutive
// months starting at the month of e.StartDate. The amount is divided evenly and the
// indivisible remainder goes to the first occurrence, so the events sum to e.Amount.
func Expand(e ledger.Expense) ([]ChargeEvent, error) {
	if e.Installments < 1 {
		return nil, invalid(e.ID, "installments", "must be >= 1")
	}
	total, err := minorUnits(e)
	if err != nil {
		return nil, err
	}
	n := int64(e.Installments)
	base, rem := total/n, total%n
	start := ledger.MonthOf(e.StartDate)

	events := make([]ChargeEvent, 0, e.Installments)
	for k := 0; k < e.Installments; k++ {
		amount := base
		if k == 0 {
			amount += rem
		}
		events = append(events, ChargeEvent{
			ExpenseID:       e.ID,
			Period:          start.AddMonths(k),
			Currency:        e.Amount.Curr(),
			Amount:          amount,
			PayerID:         e.PayerID,
			InvolvedUserIDs: e.InvolvedUserIDs,
			SplitType:       e.EffectiveSplitType(),
			SplitRatios:     e.SplitRatios,
		})
	}
	return events, nil
}
