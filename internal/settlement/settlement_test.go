package settlement

import (
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

func usd(minor int64) money.Amount {
	a, err := money.NewAmountFromMinorUnits("USD", minor)
	if err != nil {
		panic(err)
	}
	return a
}

func minor(t *testing.T, a money.Amount) int64 {
	t.Helper()
	u, ok := a.MinorUnits()
	require.True(t, ok)
	return u
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func ratios(kv map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv))
	for k, v := range kv {
		out[k] = decimal.MustParse(v)
	}
	return out
}

func expense(amount money.Amount, payer string, involved ...string) ledger.Expense {
	return ledger.Expense{
		ID:              uuid.New(),
		Amount:          amount,
		Installments:    1,
		StartDate:       date("2024-01-15"),
		PayerID:         payer,
		InvolvedUserIDs: involved,
		SplitType:       ledger.SplitEqual,
	}
}

type debt struct {
	From, To string
	Amount   int64
}

func flatten(t *testing.T, b ledger.MonthlyBalance) []debt {
	t.Helper()
	out := make([]debt, 0, len(b.Debts))
	for _, d := range b.Debts {
		assert.Equal(t, b.Currency, d.Currency())
		out = append(out, debt{d.DebtorID, d.CreditorID, minor(t, d.Amount)})
	}
	return out
}

func TestSettle_ScenarioA_EqualSplitSingleCharge(t *testing.T) {
	e := expense(money.MustNewAmount("USD", 300, 0), "alice", "alice", "bob", "carol")

	got, err := New().Settle([]ledger.Expense{e})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01", got[0].Month.String())
	assert.Equal(t, "USD", got[0].Currency)
	assert.Equal(t, []debt{
		{"bob", "alice", 10000},
		{"carol", "alice", 10000},
	}, flatten(t, got[0]))
}

func TestSettle_ScenarioB_Installments(t *testing.T) {
	e := expense(money.MustNewAmount("USD", 100, 0), "alice", "alice", "bob")
	e.Installments = 2

	got, err := New().Settle([]ledger.Expense{e})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01", got[0].Month.String())
	assert.Equal(t, "2024-02", got[1].Month.String())
	for _, b := range got {
		assert.Equal(t, []debt{{"bob", "alice", 2500}}, flatten(t, b))
	}
}

func TestSettle_ScenarioC_OppositeExpensesNetToOneDebt(t *testing.T) {
	first := expense(money.MustNewAmount("USD", 50, 0), "alice", "alice", "bob")
	second := expense(money.MustNewAmount("USD", 80, 0), "bob", "alice", "bob")

	got, err := New().Settle([]ledger.Expense{first, second})
	require.NoError(t, err)
	require.Len(t, got, 1)
	// bob owes alice 25, alice owes bob 40
	assert.Equal(t, []debt{{"alice", "bob", 1500}}, flatten(t, got[0]))
}

func TestSettle_CurrenciesAreNeverNetted(t *testing.T) {
	a := expense(usd(1000), "alice", "alice", "bob")
	b := expense(money.MustNewAmount("EUR", 10, 0), "bob", "alice", "bob")

	got, err := New().Settle([]ledger.Expense{a, b})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EUR", got[0].Currency)
	assert.Equal(t, []debt{{"alice", "bob", 500}}, flatten(t, got[0]))
	assert.Equal(t, "USD", got[1].Currency)
	assert.Equal(t, []debt{{"bob", "alice", 500}}, flatten(t, got[1]))
}

func TestSettle_BucketThatCancelsIsKeptEmpty(t *testing.T) {
	a := expense(usd(1000), "alice", "alice", "bob")
	b := expense(usd(1000), "bob", "alice", "bob")
	solo := expense(usd(700), "carol", "carol")
	solo.StartDate = date("2024-03-01")

	got, err := New().Settle([]ledger.Expense{a, b, solo})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Debts)
	assert.Equal(t, "2024-03", got[1].Month.String())
	assert.Empty(t, got[1].Debts)
}

func TestSettle_Empty(t *testing.T) {
	got, err := New().Settle(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSettle_InvalidExpenseAbortsRun(t *testing.T) {
	good := expense(usd(1000), "alice", "alice", "bob")
	bad := expense(usd(1000), "alice", "alice", "bob")
	bad.Installments = 0

	got, err := New().Settle([]ledger.Expense{good, bad})
	assert.Nil(t, got)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, bad.ID, ve.ExpenseID)
	assert.Equal(t, "installments", ve.Field)
	assert.True(t, errors.Is(err, errs.ErrUnprocessable))
}

func TestSettle_DuplicateExpenseRejected(t *testing.T) {
	e := expense(usd(1000), "alice", "alice", "bob")
	_, err := New().Settle([]ledger.Expense{e, e})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)
}

func TestSettle_UnsupportedSplitType(t *testing.T) {
	e := expense(usd(1000), "alice", "alice", "bob")
	e.SplitType = "shares"
	_, err := New().Settle([]ledger.Expense{e})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ledger.SplitType("shares"), ce.SplitType)
	assert.True(t, errors.Is(err, errs.ErrUnsupported))
}

func TestSettle_OverflowingMonthIsRejected(t *testing.T) {
	a := expense(usd(6e18), "alice", "bob")
	b := expense(usd(6e18), "alice", "bob")

	got, err := New().Settle([]ledger.Expense{a, b})
	assert.Nil(t, got)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.True(t, errors.Is(err, errs.ErrUnprocessable))

	t.Run("same amounts in different months settle", func(t *testing.T) {
		b.StartDate = date("2024-02-15")
		got, err := New().Settle([]ledger.Expense{a, b})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, mb := range got {
			assert.Equal(t, []debt{{"bob", "alice", 6e18}}, flatten(t, mb))
		}
	})
}

func TestSettle_ZeroRatioParticipantIsNeverACreditor(t *testing.T) {
	e := expense(usd(1_000_000_000), "p", "a", "b", "c")
	e.SplitType = ledger.SplitPercentage
	e.SplitRatios = ratios(map[string]string{"a": "0", "b": "50.0000005", "c": "50.0000005"})

	got, err := New().Settle([]ledger.Expense{e})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.ElementsMatch(t, []debt{{"b", "p", 500_000_000}, {"c", "p", 500_000_000}}, flatten(t, got[0]))
}

func TestSettle_DustIsDropped(t *testing.T) {
	// bob owes alice 1 cent after netting
	a := expense(usd(1001), "alice", "alice", "bob")
	b := expense(usd(1000), "bob", "alice", "bob")

	got, err := New().Settle([]ledger.Expense{a, b})
	require.NoError(t, err)
	assert.Equal(t, []debt{{"bob", "alice", 1}}, flatten(t, got[0]))

	got, err = New(WithDust(1)).Settle([]ledger.Expense{a, b})
	require.NoError(t, err)
	assert.Empty(t, got[0].Debts)
}

func TestSettle_DeterministicUnderReordering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	expenses := randomExpenses(rng, 40)

	want, err := New().Settle(expenses)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		shuffled := append([]ledger.Expense(nil), expenses...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := New().Settle(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSettle_OutputInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	expenses := randomExpenses(rng, 60)

	balances, err := New().Settle(expenses)
	require.NoError(t, err)

	// raw per-bucket balances straight from the shares
	var shares []Share
	for _, e := range expenses {
		events, err := Expand(e)
		require.NoError(t, err)
		for _, ev := range events {
			s, err := Split(ev)
			require.NoError(t, err)
			shares = append(shares, s...)
		}
	}
	raw, err := Aggregate(shares)
	require.NoError(t, err)

	for i, b := range balances {
		if i > 0 {
			prev := balances[i-1]
			assert.True(t, prev.Month.Before(b.Month) || (prev.Month == b.Month && prev.Currency < b.Currency), "balances out of order")
		}
		curr, err := money.ParseCurr(b.Currency)
		require.NoError(t, err)
		want := nonZero(raw[Bucket{Period: b.Month, Currency: curr}].Balances())

		got := map[string]int64{}
		directed := map[[2]string]bool{}
		nonZeroParties := map[string]bool{}
		for j, d := range b.Debts {
			amt := minor(t, d.Amount)
			assert.Positive(t, amt)
			assert.NotEqual(t, d.DebtorID, d.CreditorID)
			assert.False(t, directed[[2]string{d.CreditorID, d.DebtorID}], "mutual debt %s<->%s", d.DebtorID, d.CreditorID)
			directed[[2]string{d.DebtorID, d.CreditorID}] = true
			got[d.DebtorID] -= amt
			got[d.CreditorID] += amt
			nonZeroParties[d.DebtorID] = true
			nonZeroParties[d.CreditorID] = true
			if j > 0 {
				p := b.Debts[j-1]
				assert.True(t, p.DebtorID < d.DebtorID || (p.DebtorID == d.DebtorID && p.CreditorID < d.CreditorID), "debts out of order")
			}
		}
		assert.Equal(t, want, nonZero(got), "bucket %s %s", b.Month, b.Currency)
		if len(want) > 0 {
			assert.LessOrEqual(t, len(b.Debts), len(want)-1)
		}
		for id := range nonZeroParties {
			assert.NotZero(t, want[id])
		}
	}
}

func nonZero(m map[string]int64) map[string]int64 {
	out := map[string]int64{}
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// randomExpenses builds valid expenses over a small group with integer
// percentages so expected portions can be recomputed exactly.
func randomExpenses(rng *rand.Rand, n int) []ledger.Expense {
	people := []string{"ana", "ben", "cho", "dev", "eli", "fay"}
	currencies := []string{"USD", "EUR", "JPY"}
	out := make([]ledger.Expense, 0, n)
	for i := 0; i < n; i++ {
		k := 1 + rng.Intn(len(people))
		perm := rng.Perm(len(people))
		involved := make([]string, 0, k)
		for _, idx := range perm[:k] {
			involved = append(involved, people[idx])
		}
		amt, _ := money.NewAmountFromMinorUnits(currencies[rng.Intn(len(currencies))], int64(1+rng.Intn(100000)))
		e := ledger.Expense{
			ID:              uuid.New(),
			Amount:          amt,
			Installments:    1 + rng.Intn(4),
			StartDate:       date("2024-01-01").AddDate(0, rng.Intn(3), rng.Intn(28)),
			PayerID:         people[rng.Intn(len(people))],
			InvolvedUserIDs: involved,
			SplitType:       ledger.SplitEqual,
		}
		if rng.Intn(2) == 0 {
			e.SplitType = ledger.SplitPercentage
			e.SplitRatios = map[string]decimal.Decimal{}
			left := 100
			for j, id := range involved {
				r := left
				if j < len(involved)-1 {
					r = rng.Intn(left + 1)
				}
				e.SplitRatios[id] = decimal.MustNew(int64(r), 0)
				left -= r
			}
		}
		out = append(out, e)
	}
	return out
}

func TestConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for _, e := range randomExpenses(rng, 200) {
		total := minor(t, e.Amount)
		events, err := Expand(e)
		require.NoError(t, err)

		var sum int64
		for _, ev := range events {
			shares, err := Split(ev)
			require.NoError(t, err)
			var emitted int64
			for _, s := range shares {
				assert.NotEqual(t, e.PayerID, s.DebtorID)
				assert.Positive(t, s.Amount)
				emitted += s.Amount
			}
			sum += emitted + absorbed(e, ev.Amount)
		}
		assert.Equal(t, total, sum, "expense %s (%s)", e.ID, e.SplitType)
	}
}

// absorbed recomputes the payer's own portion independently of Split.
func absorbed(e ledger.Expense, amount int64) int64 {
	member := false
	for _, id := range e.InvolvedUserIDs {
		if id == e.PayerID {
			member = true
		}
	}
	if !member {
		return 0
	}
	if e.SplitType == ledger.SplitPercentage {
		pct, _ := strconv.ParseInt(e.SplitRatios[e.PayerID].String(), 10, 64)
		return amount * pct / 100
	}
	return amount / int64(len(e.InvolvedUserIDs))
}

func sortedDebtors(shares []Share) []string {
	ids := make([]string, 0, len(shares))
	for _, s := range shares {
		ids = append(ids, s.DebtorID)
	}
	sort.Strings(ids)
	return ids
}

func curr(code string) money.Currency {
	c, err := money.ParseCurr(code)
	if err != nil {
		panic(err)
	}
	return c
}
