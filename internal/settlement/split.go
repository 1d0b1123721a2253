package settlement

import (
	"sort"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// Share is what one non-payer participant owes the payer for a charge event.
type Share struct {
	ExpenseID uuid.UUID
	Period    ledger.Month
	Currency  money.Currency
	PayerID   string
	DebtorID  string
	Amount    int64
}

// Split computes the shares of a charge event. The payer never owes themself: when
// the payer is involved their portion is absorbed and no share is emitted for it.
// Portions are floored to the minor unit and the rounding remainder is added to the
// lexicographically first debtor, so emitted shares plus the absorbed portion equal
// the event amount exactly. Zero shares are omitted.
func Split(ev ChargeEvent) ([]Share, error) {
	var (
		portions map[string]int64
		err      error
	)
	switch ev.SplitType {
	case ledger.SplitEqual, "":
		portions = equalPortions(ev.Amount, ev.InvolvedUserIDs)
	case ledger.SplitPercentage:
		portions, err = percentagePortions(ev)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &ConfigurationError{ExpenseID: ev.ExpenseID, SplitType: ev.SplitType}
	}

	owed := ev.Amount
	debtors := make([]string, 0, len(ev.InvolvedUserIDs))
	for _, id := range ev.InvolvedUserIDs {
		if id == ev.PayerID {
			owed -= portions[id]
			continue
		}
		debtors = append(debtors, id)
	}
	if len(debtors) == 0 {
		return nil, nil
	}
	sort.Strings(debtors)

	var emitted int64
	for _, id := range debtors {
		next, ok := addMinor(emitted, portions[id])
		if !ok {
			return nil, invalid(ev.ExpenseID, "amount", "share total out of range")
		}
		emitted = next
	}
	if emitted > owed {
		return nil, invalid(ev.ExpenseID, "split_ratios", "shares exceed the amount")
	}
	portions[debtors[0]] += owed - emitted

	shares := make([]Share, 0, len(debtors))
	for _, id := range debtors {
		if portions[id] == 0 {
			continue
		}
		shares = append(shares, Share{
			ExpenseID: ev.ExpenseID,
			Period:    ev.Period,
			Currency:  ev.Currency,
			PayerID:   ev.PayerID,
			DebtorID:  id,
			Amount:    portions[id],
		})
	}
	return shares, nil
}

func equalPortions(amount int64, ids []string) map[string]int64 {
	out := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return out
	}
	base := amount / int64(len(ids))
	for _, id := range ids {
		out[id] = base
	}
	return out
}

// percentagePortions floors amount*ratio/total for each involved user, where total
// is the actual ratio sum. The floors never add up to more than amount.
func percentagePortions(ev ChargeEvent) (map[string]int64, error) {
	total, err := ratioSum(ev.ExpenseID, ev.InvolvedUserIDs, ev.SplitRatios)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.New(ev.Amount, 0)
	if err != nil {
		return nil, invalid(ev.ExpenseID, "amount", err.Error())
	}
	out := make(map[string]int64, len(ev.InvolvedUserIDs))
	for _, id := range ev.InvolvedUserIDs {
		v, err := amount.Mul(ev.SplitRatios[id])
		if err != nil {
			return nil, invalid(ev.ExpenseID, "split_ratios", err.Error())
		}
		v, err = v.Quo(total)
		if err != nil {
			return nil, invalid(ev.ExpenseID, "split_ratios", err.Error())
		}
		whole, _, ok := v.Floor(0).Int64(0)
		if !ok {
			return nil, invalid(ev.ExpenseID, "split_ratios", "share out of range")
		}
		out[id] = whole
	}
	return out, nil
}
