// Package settlement turns a trip's expenses into the minimal set of monthly
// settle-up debts per currency.
//
// The engine is a pure function of its input: it holds no mutable state, performs
// no I/O and does not log, so independent runs may execute concurrently and a rerun
// over the same expenses (in any order) yields identical output.
package settlement

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// Engine runs the expand, split, aggregate and net pipeline.
type Engine struct {
	dust int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithDust treats net balances of at most minor units as settled instead of
// emitting a debt for rounding dust. Negative values are ignored.
func WithDust(minor int64) Option {
	return func(e *Engine) {
		if minor >= 0 {
			e.dust = minor
		}
	}
}

// New returns an Engine with the default dust threshold unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks one expense the way Settle does before computing anything.
func (e *Engine) Validate(x ledger.Expense) error { return Validate(x) }

// Settle computes one MonthlyBalance per (month, currency) touched by the
// expenses, sorted by month then currency, with debts sorted by debtor then
// creditor. Any invalid expense aborts the run; no partial result is returned.
func (e *Engine) Settle(expenses []ledger.Expense) ([]ledger.MonthlyBalance, error) {
	ordered := make([]ledger.Expense, len(expenses))
	copy(ordered, expenses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	seen := make(map[uuid.UUID]struct{}, len(ordered))
	for _, x := range ordered {
		if err := Validate(x); err != nil {
			return nil, err
		}
		if x.ID == uuid.Nil {
			continue
		}
		if _, dup := seen[x.ID]; dup {
			return nil, invalid(x.ID, "id", "expense listed twice")
		}
		seen[x.ID] = struct{}{}
	}

	touched := make(map[Bucket]struct{})
	var shares []Share
	for _, x := range ordered {
		events, err := Expand(x)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			touched[Bucket{Period: ev.Period, Currency: ev.Currency}] = struct{}{}
			s, err := Split(ev)
			if err != nil {
				return nil, err
			}
			shares = append(shares, s...)
		}
	}

	obligations, err := Aggregate(shares)
	if err != nil {
		return nil, err
	}
	buckets := make([]Bucket, 0, len(touched))
	for b := range touched {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Period != buckets[j].Period {
			return buckets[i].Period.Before(buckets[j].Period)
		}
		return buckets[i].Currency.Code() < buckets[j].Currency.Code()
	})

	out := make([]ledger.MonthlyBalance, 0, len(buckets))
	for _, b := range buckets {
		debts, err := toDebts(b.Currency, Net(obligations[b], e.dust))
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.MonthlyBalance{Month: b.Period, Currency: b.Currency.Code(), Debts: debts})
	}
	return out, nil
}

func toDebts(curr money.Currency, transfers []Transfer) ([]ledger.MonthlyDebt, error) {
	debts := make([]ledger.MonthlyDebt, 0, len(transfers))
	for _, t := range transfers {
		amt, err := money.NewAmountFromMinorUnits(curr.Code(), t.Amount)
		if err != nil {
			return nil, fmt.Errorf("debt %s->%s: %w", t.From, t.To, err)
		}
		debts = append(debts, ledger.MonthlyDebt{DebtorID: t.From, CreditorID: t.To, Amount: amt})
	}
	sort.Slice(debts, func(i, j int) bool {
		if debts[i].DebtorID != debts[j].DebtorID {
			return debts[i].DebtorID < debts[j].DebtorID
		}
		return debts[i].CreditorID < debts[j].CreditorID
	})
	return debts, nil
}
