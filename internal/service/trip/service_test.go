package trip_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/service/trip"
	"github.com/tinoosan/tripsettle/internal/slug"
	"github.com/tinoosan/tripsettle/internal/storage/memory"
)

func newService() (trip.Service, *memory.Store) {
	store := memory.New()
	return trip.New(store, store), store
}

func TestCreate_AddsOwnerAndSlug(t *testing.T) {
	svc, _ := newService()
	created, err := svc.Create(context.Background(), ledger.Trip{Name: " Ski Week ", OwnerID: "alice", Participants: []string{"bob", " carol "}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "Ski Week", created.Name)
	assert.Equal(t, []string{"alice", "bob", "carol"}, created.Participants)
	assert.True(t, slug.IsSlug(created.Slug), created.Slug)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Participants, got.Participants)
}

func TestValidateCreate(t *testing.T) {
	svc, _ := newService()
	cases := map[string]ledger.Trip{
		"no name":      {OwnerID: "alice"},
		"no owner":     {Name: "x"},
		"blank member": {Name: "x", OwnerID: "alice", Participants: []string{""}},
		"duplicate":    {Name: "x", OwnerID: "alice", Participants: []string{"bob", "bob"}},
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, svc.ValidateCreate(tr), errs.ErrInvalid)
		})
	}
	// owner listed explicitly is not a duplicate
	assert.NoError(t, svc.ValidateCreate(ledger.Trip{Name: "x", OwnerID: "alice", Participants: []string{"alice", "bob"}}))
}

func TestParticipants(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	tr, err := svc.Create(ctx, ledger.Trip{Name: "Rome", OwnerID: "alice", Participants: []string{"bob"}})
	require.NoError(t, err)

	tr, err = svc.AddParticipant(ctx, tr.ID, "carol")
	require.NoError(t, err)
	tr, err = svc.AddParticipant(ctx, tr.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, tr.Participants)

	amt, _ := money.NewAmountFromMinorUnits("EUR", 900)
	store.SeedExpense(ledger.Expense{ID: uuid.New(), TripID: tr.ID, Amount: amt, Installments: 1, PayerID: "alice", InvolvedUserIDs: []string{"alice", "bob"}})

	_, err = svc.RemoveParticipant(ctx, tr.ID, "bob")
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = svc.RemoveParticipant(ctx, tr.ID, "alice")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.RemoveParticipant(ctx, tr.ID, "zoe")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	tr, err = svc.RemoveParticipant(ctx, tr.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, tr.Participants)

	_, err = svc.AddParticipant(ctx, uuid.New(), "dave")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, _ = svc.Create(ctx, ledger.Trip{Name: "A", OwnerID: "alice"})
	_, _ = svc.Create(ctx, ledger.Trip{Name: "B", OwnerID: "bob"})
	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Name)
	_, err = svc.List(ctx, " ")
	assert.ErrorIs(t, err, errs.ErrInvalid)
}
