package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/settlement"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.pool.Exec(ctx, `truncate table expense_idempotency, expense_participants, expenses, trip_participants, trips cascade`)
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/trips":   "pgx5://u:p@db:5432/trips",
		"postgresql://u:p@db:5432/trips": "pgx5://u:p@db:5432/trips",
		"pgx5://already":                 "pgx5://already",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStore_TripsAndExpenses(t *testing.T) {
	dsn := getTestDSN(t)
	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := mustOpen(t, dsn)
	defer s.Close()
	truncateAll(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	trip, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := s.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if len(got.Participants) != 3 || got.Participants[0] != "alice" {
		t.Fatalf("participants not round-tripped in order: %v", got.Participants)
	}
	got.Participants = append(got.Participants, "dave")
	if _, err := s.UpdateTrip(ctx, got); err != nil {
		t.Fatalf("update trip: %v", err)
	}
	trips, err := s.ListTrips(ctx, "alice")
	if err != nil || len(trips) != 1 || len(trips[0].Participants) != 4 {
		t.Fatalf("list trips: %v %+v", err, trips)
	}

	amt, _ := money.NewAmountFromMinorUnits("USD", 10001)
	e := ledger.Expense{
		ID: uuid.New(), TripID: trip.ID, Description: "Hotel", Category: ledger.CategoryLodging,
		Amount: amt, Installments: 3, StartDate: time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
		PayerID: "alice", InvolvedUserIDs: []string{"carol", "alice", "bob"}, SplitType: ledger.SplitPercentage,
		SplitRatios: map[string]decimal.Decimal{
			"alice": decimal.MustParse("33.3"), "bob": decimal.MustParse("33.3"), "carol": decimal.MustParse("33.4"),
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.CreateExpense(ctx, e); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	gotE, err := s.GetExpense(ctx, trip.ID, e.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if minor, _ := gotE.Amount.MinorUnits(); minor != 10001 || gotE.Currency() != "USD" {
		t.Fatalf("amount not round-tripped: %v", gotE.Amount)
	}
	if gotE.InvolvedUserIDs[0] != "carol" || gotE.SplitRatios["carol"].String() != "33.4" {
		t.Fatalf("involved/ratios not round-tripped: %+v", gotE)
	}
	if err := settlement.Validate(gotE); err != nil {
		t.Fatalf("stored expense no longer valid: %v", err)
	}

	// batch import is atomic: a bad trip id rolls back the valid one
	ok := e
	ok.ID = uuid.New()
	bad := e
	bad.ID = uuid.New()
	bad.TripID = uuid.New()
	if _, err := s.CreateExpenses(ctx, []ledger.Expense{ok, bad}); err == nil {
		t.Fatal("expected batch failure")
	}
	list, err := s.ListExpenses(ctx, trip.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("batch not rolled back: %v %d", err, len(list))
	}

	gotE.InvolvedUserIDs = []string{"alice", "bob"}
	gotE.SplitType = ledger.SplitEqual
	gotE.SplitRatios = nil
	if _, err := s.UpdateExpense(ctx, gotE); err != nil {
		t.Fatalf("update expense: %v", err)
	}

	key := "test-key-1"
	if err := s.SaveIdempotencyKey(ctx, trip.ID, key, e.ID); err != nil {
		t.Fatalf("save idem: %v", err)
	}
	if replay, ok, err := s.ExpenseByIdempotencyKey(ctx, trip.ID, key); err != nil || !ok || len(replay.InvolvedUserIDs) != 2 {
		t.Fatalf("get idem: %v ok=%v", err, ok)
	}

	if err := s.DeleteExpense(ctx, trip.ID, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteExpense(ctx, trip.ID, e.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok, _ := s.ExpenseByIdempotencyKey(ctx, trip.ID, key); ok {
		t.Fatal("idempotency key should go with its expense")
	}
}
