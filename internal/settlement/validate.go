package settlement

import (
	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

var (
	hundred = decimal.MustNew(100, 0)
	// ratioEpsilon bounds how far percentages may drift from 100 in total.
	ratioEpsilon = decimal.MustNew(1, 6)
)

// Validate re-checks the expense invariants the host layer is expected to enforce.
func Validate(e ledger.Expense) error {
	if _, err := minorUnits(e); err != nil {
		return err
	}
	if e.Installments < 1 {
		return invalid(e.ID, "installments", "must be >= 1")
	}
	if e.PayerID == "" {
		return invalid(e.ID, "payer_id", "required")
	}
	if err := checkMembers(e); err != nil {
		return err
	}
	switch e.EffectiveSplitType() {
	case ledger.SplitEqual:
		return nil
	case ledger.SplitPercentage:
		return checkRatios(e)
	default:
		return &ConfigurationError{ExpenseID: e.ID, SplitType: e.SplitType}
	}
}

func minorUnits(e ledger.Expense) (int64, error) {
	units, ok := e.Amount.MinorUnits()
	if !ok {
		return 0, invalid(e.ID, "amount", "out of range")
	}
	if units <= 0 {
		return 0, invalid(e.ID, "amount", "must be > 0")
	}
	return units, nil
}

func checkMembers(e ledger.Expense) error {
	if len(e.InvolvedUserIDs) == 0 {
		return invalid(e.ID, "involved_user_ids", "must not be empty")
	}
	seen := make(map[string]struct{}, len(e.InvolvedUserIDs))
	for _, id := range e.InvolvedUserIDs {
		if id == "" {
			return invalid(e.ID, "involved_user_ids", "empty participant id")
		}
		if _, dup := seen[id]; dup {
			return invalid(e.ID, "involved_user_ids", "duplicate participant "+id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkRatios requires ratio keys to be exactly the involved users, each >= 0,
// summing to 100 within ratioEpsilon.
func checkRatios(e ledger.Expense) error {
	_, err := ratioSum(e.ID, e.InvolvedUserIDs, e.SplitRatios)
	return err
}

// ratioSum validates a ratio set against the involved users and returns its total.
func ratioSum(id uuid.UUID, involved []string, ratios map[string]decimal.Decimal) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if len(ratios) == 0 {
		return sum, invalid(id, "split_ratios", "required for percentage split")
	}
	for _, u := range involved {
		r, ok := ratios[u]
		if !ok {
			return sum, invalid(id, "split_ratios", "missing ratio for "+u)
		}
		if r.IsNeg() {
			return sum, invalid(id, "split_ratios", "negative ratio for "+u)
		}
		next, err := sum.Add(r)
		if err != nil {
			return sum, invalid(id, "split_ratios", err.Error())
		}
		sum = next
	}
	if len(ratios) != len(involved) {
		return sum, invalid(id, "split_ratios", "ratio given for a participant who is not involved")
	}
	diff, err := sum.Sub(hundred)
	if err != nil {
		return sum, invalid(id, "split_ratios", err.Error())
	}
	if diff.Abs().Cmp(ratioEpsilon) > 0 {
		return sum, invalid(id, "split_ratios", "must sum to 100, got "+sum.String())
	}
	return sum, nil
}
