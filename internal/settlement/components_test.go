package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/tripsettle/internal/ledger"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name         string
		amount       int64
		installments int
		start        string
		wantAmounts  []int64
		wantMonths   []string
	}{
		{"single", 30000, 1, "2024-01-15", []int64{30000}, []string{"2024-01"}},
		{"even", 10000, 2, "2024-01-15", []int64{5000, 5000}, []string{"2024-01", "2024-02"}},
		{"remainder to first", 10001, 3, "2024-11-30", []int64{3335, 3333, 3333}, []string{"2024-11", "2024-12", "2025-01"}},
		{"more installments than units", 2, 3, "2024-01-31", []int64{2, 0, 0}, []string{"2024-01", "2024-02", "2024-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := expense(usd(tt.amount), "alice", "alice", "bob")
			e.Installments = tt.installments
			e.StartDate = date(tt.start)

			events, err := Expand(e)
			require.NoError(t, err)
			require.Len(t, events, tt.installments)
			var amounts []int64
			var months []string
			for _, ev := range events {
				amounts = append(amounts, ev.Amount)
				months = append(months, ev.Period.String())
				assert.Equal(t, e.ID, ev.ExpenseID)
				assert.Equal(t, "USD", ev.Currency.Code())
				assert.Equal(t, ledger.SplitEqual, ev.SplitType)
			}
			assert.Equal(t, tt.wantAmounts, amounts)
			assert.Equal(t, tt.wantMonths, months)
		})
	}
}

func TestExpand_Rejects(t *testing.T) {
	zeroInstallments := expense(usd(100), "alice", "bob")
	zeroInstallments.Installments = 0
	zeroAmount := expense(usd(0), "alice", "bob")
	negative := expense(usd(-5), "alice", "bob")

	for name, e := range map[string]ledger.Expense{"installments": zeroInstallments, "zero": zeroAmount, "negative": negative} {
		t.Run(name, func(t *testing.T) {
			_, err := Expand(e)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, e.ID, ve.ExpenseID)
		})
	}
}

func event(amount int64, payer string, involved ...string) ChargeEvent {
	return ChargeEvent{
		ExpenseID:       uuid.New(),
		Period:          ledger.Month{Year: 2024, Month: 1},
		Currency:        curr("USD"),
		Amount:          amount,
		PayerID:         payer,
		InvolvedUserIDs: involved,
		SplitType:       ledger.SplitEqual,
	}
}

func shareMap(shares []Share) map[string]int64 {
	out := map[string]int64{}
	for _, s := range shares {
		out[s.DebtorID] = s.Amount
	}
	return out
}

func TestSplit_Equal(t *testing.T) {
	t.Run("payer involved absorbs own part", func(t *testing.T) {
		shares, err := Split(event(30000, "alice", "alice", "bob", "carol"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"bob": 10000, "carol": 10000}, shareMap(shares))
		assert.Equal(t, []string{"bob", "carol"}, sortedDebtors(shares))
	})
	t.Run("payer not involved", func(t *testing.T) {
		shares, err := Split(event(1000, "zoe", "bob", "amy"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"amy": 500, "bob": 500}, shareMap(shares))
	})
	t.Run("remainder to first debtor", func(t *testing.T) {
		shares, err := Split(event(100, "alice", "carol", "alice", "bob"))
		require.NoError(t, err)
		// 33 each, alice absorbs 33, bob takes the extra unit
		assert.Equal(t, map[string]int64{"bob": 34, "carol": 33}, shareMap(shares))
	})
	t.Run("payer alone", func(t *testing.T) {
		shares, err := Split(event(100, "alice", "alice"))
		require.NoError(t, err)
		assert.Empty(t, shares)
	})
}

func TestSplit_Percentage(t *testing.T) {
	pct := func(amount int64, payer string, r map[string]string, involved ...string) ChargeEvent {
		ev := event(amount, payer, involved...)
		ev.SplitType = ledger.SplitPercentage
		ev.SplitRatios = ratios(r)
		return ev
	}
	abc := map[string]string{"a": "33", "b": "33", "c": "34"}

	t.Run("exact", func(t *testing.T) {
		shares, err := Split(pct(10000, "c", abc, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"a": 3300, "b": 3300}, shareMap(shares))
	})
	t.Run("rounding remainder to lexicographically first debtor", func(t *testing.T) {
		// 33.33 + 33.33 + 34.34: c absorbs 34, a and b floor to 33, a gets the extra unit
		shares, err := Split(pct(101, "c", abc, "c", "b", "a"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"a": 34, "b": 33}, shareMap(shares))
	})
	t.Run("payer outside the split", func(t *testing.T) {
		shares, err := Split(pct(101, "p", abc, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"a": 34, "b": 33, "c": 34}, shareMap(shares))
	})
	t.Run("fractional ratios", func(t *testing.T) {
		shares, err := Split(pct(1000, "a", map[string]string{"a": "12.5", "b": "87.5"}, "a", "b"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"b": 875}, shareMap(shares))
	})
	t.Run("missing ratio", func(t *testing.T) {
		_, err := Split(pct(100, "a", map[string]string{"a": "100"}, "a", "b"))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "split_ratios", ve.Field)
	})
	t.Run("ratios not summing to 100", func(t *testing.T) {
		_, err := Split(pct(10000, "p", map[string]string{"a": "10", "b": "10"}, "a", "b"))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "split_ratios", ve.Field)
	})
	t.Run("sum just over 100 never yields a negative share", func(t *testing.T) {
		r := map[string]string{"a": "0", "b": "50.0000005", "c": "50.0000005"}
		shares, err := Split(pct(1_000_000_000, "p", r, "a", "b", "c"))
		require.NoError(t, err)
		var total int64
		for _, s := range shares {
			assert.Positive(t, s.Amount, s.DebtorID)
			total += s.Amount
		}
		assert.Equal(t, int64(1_000_000_000), total)
		assert.NotContains(t, shareMap(shares), "a")
	})
	t.Run("sum just under 100 still conserves the amount", func(t *testing.T) {
		r := map[string]string{"a": "33.3333333", "b": "33.3333333", "c": "33.3333333"}
		shares, err := Split(pct(100, "p", r, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"a": 34, "b": 33, "c": 33}, shareMap(shares))
	})
}

func TestValidate_Ratios(t *testing.T) {
	base := func(r map[string]string) ledger.Expense {
		e := expense(usd(1000), "a", "a", "b")
		e.SplitType = ledger.SplitPercentage
		e.SplitRatios = ratios(r)
		return e
	}
	assert.NoError(t, Validate(base(map[string]string{"a": "50", "b": "50"})))
	assert.NoError(t, Validate(base(map[string]string{"a": "33.3333335", "b": "66.6666666"})))

	bad := map[string]map[string]string{
		"sum low":  {"a": "50", "b": "49.9"},
		"sum high": {"a": "50", "b": "50.00001"},
		"missing":  {"a": "100"},
		"extra":    {"a": "50", "b": "40", "c": "10"},
		"negative": {"a": "120", "b": "-20"},
		"empty":    {},
	}
	for name, r := range bad {
		t.Run(name, func(t *testing.T) {
			err := Validate(base(r))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "split_ratios", ve.Field)
		})
	}
}

func TestValidate_Members(t *testing.T) {
	noPayer := expense(usd(100), "", "a")
	none := expense(usd(100), "a")
	dup := expense(usd(100), "a", "a", "b", "a")
	blank := expense(usd(100), "a", "a", "")

	for name, tc := range map[string]struct {
		e     ledger.Expense
		field string
	}{
		"no payer":  {noPayer, "payer_id"},
		"none":      {none, "involved_user_ids"},
		"duplicate": {dup, "involved_user_ids"},
		"blank":     {blank, "involved_user_ids"},
	} {
		t.Run(name, func(t *testing.T) {
			var ve *ValidationError
			require.ErrorAs(t, Validate(tc.e), &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestAggregate_CancelsAndIsOrderIndependent(t *testing.T) {
	jan := ledger.Month{Year: 2024, Month: 1}
	feb := jan.AddMonths(1)
	shares := []Share{
		{Period: jan, Currency: curr("USD"), PayerID: "alice", DebtorID: "bob", Amount: 2500},
		{Period: jan, Currency: curr("USD"), PayerID: "bob", DebtorID: "alice", Amount: 4000},
		{Period: jan, Currency: curr("EUR"), PayerID: "bob", DebtorID: "alice", Amount: 100},
		{Period: feb, Currency: curr("USD"), PayerID: "carol", DebtorID: "alice", Amount: 700},
	}
	got, err := Aggregate(shares)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, NetObligation{{A: "alice", B: "bob"}: 1500}, got[Bucket{jan, curr("USD")}])
	assert.Equal(t, NetObligation{{A: "alice", B: "bob"}: 100}, got[Bucket{jan, curr("EUR")}])
	assert.Equal(t, NetObligation{{A: "alice", B: "carol"}: 700}, got[Bucket{feb, curr("USD")}])

	reversed := make([]Share, len(shares))
	for i := range shares {
		reversed[len(shares)-1-i] = shares[i]
	}
	again, err := Aggregate(reversed)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestAggregate_RejectsOverflowingBucket(t *testing.T) {
	jan := ledger.Month{Year: 2024, Month: 1}
	id := uuid.New()
	shares := []Share{
		{ExpenseID: uuid.New(), Period: jan, Currency: curr("USD"), PayerID: "alice", DebtorID: "bob", Amount: 6e18},
		{ExpenseID: id, Period: jan, Currency: curr("USD"), PayerID: "alice", DebtorID: "bob", Amount: 6e18},
	}
	_, err := Aggregate(shares)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Equal(t, id, ve.ExpenseID)

	t.Run("separate buckets do not share a bound", func(t *testing.T) {
		split := []Share{shares[0], shares[1]}
		split[1].Period = jan.AddMonths(1)
		got, err := Aggregate(split)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestNet(t *testing.T) {
	t.Run("chain collapses", func(t *testing.T) {
		o := NetObligation{}
		o.Add("a", "b", 1000)
		o.Add("b", "c", 1000)
		assert.Equal(t, []Transfer{{From: "a", To: "c", Amount: 1000}}, Net(o, 0))
	})
	t.Run("largest first with id tie-break", func(t *testing.T) {
		o := NetObligation{}
		o.Add("e", "y", 1000)
		o.Add("d", "x", 1000)
		o.Add("f", "x", 300)
		// x +1300, y +1000; d -1000, e -1000, f -300
		want := []Transfer{
			{From: "d", To: "x", Amount: 1000},
			{From: "e", To: "y", Amount: 1000},
			{From: "f", To: "x", Amount: 300},
		}
		assert.Equal(t, want, Net(o, 0))
	})
	t.Run("settled pairs vanish", func(t *testing.T) {
		o := NetObligation{}
		o.Add("a", "b", 500)
		o.Add("b", "a", 500)
		assert.Empty(t, Net(o, 0))
	})
	t.Run("self debt ignored", func(t *testing.T) {
		o := NetObligation{}
		o.Add("a", "a", 500)
		assert.Empty(t, o)
	})
	t.Run("at most n-1 transfers", func(t *testing.T) {
		o := NetObligation{}
		ids := []string{"p1", "p2", "p3", "p4", "p5"}
		for i, from := range ids {
			for j, to := range ids {
				if i != j {
					o.Add(from, to, int64((i+1)*(j+2)*37))
				}
			}
		}
		transfers := Net(o, 0)
		assert.LessOrEqual(t, len(transfers), len(ids)-1)
		got := map[string]int64{}
		for _, tr := range transfers {
			got[tr.From] -= tr.Amount
			got[tr.To] += tr.Amount
		}
		assert.Equal(t, nonZero(o.Balances()), nonZero(got))
	})
}
