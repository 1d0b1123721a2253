package settlement

import (
	"math"

	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// Bucket is a settlement period and currency; debts are only netted within one bucket.
type Bucket struct {
	Period   ledger.Month
	Currency money.Currency
}

// Pair is an unordered participant pair stored with A < B.
type Pair struct {
	A, B string
}

// NetObligation maps a pair to its signed net amount in minor units:
// positive means A owes B, negative means B owes A.
type NetObligation map[Pair]int64

// Add records that debtor owes creditor amount. It does not check for overflow;
// Aggregate bounds every bucket before folding into it.
func (o NetObligation) Add(debtor, creditor string, amount int64) {
	if debtor == creditor || amount == 0 {
		return
	}
	if debtor < creditor {
		o[Pair{A: debtor, B: creditor}] += amount
		return
	}
	o[Pair{A: creditor, B: debtor}] -= amount
}

// Balances returns each participant's net position: owed to them minus what they owe.
// Participants whose pairs all cancel appear with a zero balance.
func (o NetObligation) Balances() map[string]int64 {
	out := make(map[string]int64, len(o)*2)
	for p, v := range o {
		out[p.A] -= v
		out[p.B] += v
	}
	return out
}

// Aggregate folds shares into per-bucket pairwise obligations. The fold is a plain
// sum, so the result does not depend on the order of shares.
//
// Each bucket's gross share total must fit in int64. Every pair value and every
// participant balance is bounded by that total, so the fold cannot wrap around.
// A bucket that would overflow fails with a ValidationError on field "amount".
func Aggregate(shares []Share) (map[Bucket]NetObligation, error) {
	out := make(map[Bucket]NetObligation)
	gross := make(map[Bucket]int64)
	for _, s := range shares {
		b := Bucket{Period: s.Period, Currency: s.Currency}
		total, ok := addMinor(gross[b], s.Amount)
		if !ok {
			return nil, invalid(s.ExpenseID, "amount", "total for "+s.Period.String()+" "+s.Currency.Code()+" is out of range")
		}
		gross[b] = total
		o, ok := out[b]
		if !ok {
			o = NetObligation{}
			out[b] = o
		}
		o.Add(s.DebtorID, s.PayerID, s.Amount)
	}
	return out, nil
}

// addMinor adds two non-negative minor-unit amounts, reporting false on overflow.
func addMinor(a, b int64) (int64, bool) {
	if b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
