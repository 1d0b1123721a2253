// Package balance serves monthly settle-up balances for a trip. Results are
// recomputed from the trip's full expense set and cached under a content hash
// of that set, so a stale entry can never be served for changed expenses.
package balance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tinoosan/tripsettle/internal/cache"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/settlement"
)

type Repo interface {
	GetTrip(ctx context.Context, id uuid.UUID) (ledger.Trip, error)
	ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error)
}

type Service interface {
	// MonthlyBalances returns one balance per (month, currency) for the trip.
	// The returned slices are shared with the cache and must not be modified.
	MonthlyBalances(ctx context.Context, tripID uuid.UUID) ([]ledger.MonthlyBalance, error)
	// Month returns the balances of a single month, one per currency.
	Month(ctx context.Context, tripID uuid.UUID, month ledger.Month) ([]ledger.MonthlyBalance, error)
	Invalidate(tripID uuid.UUID)
}

// Snapshot is a cached settlement result for one trip.
type Snapshot struct {
	Hash     string
	Balances []ledger.MonthlyBalance
}

type service struct {
	repo   Repo
	engine *settlement.Engine
	cache  *cache.LRU[Snapshot]
	group  singleflight.Group
	log    *slog.Logger
}

type Option func(*service)

func WithEngine(e *settlement.Engine) Option  { return func(s *service) { s.engine = e } }
func WithCache(c *cache.LRU[Snapshot]) Option { return func(s *service) { s.cache = c } }
func WithLogger(l *slog.Logger) Option        { return func(s *service) { s.log = l } }

func New(repo Repo, opts ...Option) Service {
	s := &service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = settlement.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *service) MonthlyBalances(ctx context.Context, tripID uuid.UUID) ([]ledger.MonthlyBalance, error) {
	if tripID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	if _, err := s.repo.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, tripID)
	if err != nil {
		return nil, err
	}
	hash, err := contentHash(expenses)
	if err != nil {
		return nil, err
	}
	key := tripID.String()
	if s.cache != nil {
		if snap, ok := s.cache.Get(key); ok && snap.Hash == hash {
			cacheLookups.WithLabelValues("hit").Inc()
			return snap.Balances, nil
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	v, err, shared := s.group.Do(key+":"+hash, func() (any, error) {
		start := time.Now()
		balances, err := s.engine.Settle(expenses)
		settlementDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			settlementRuns.WithLabelValues(runResult(err)).Inc()
			return nil, err
		}
		settlementRuns.WithLabelValues("ok").Inc()
		if s.cache != nil {
			s.cache.Set(key, Snapshot{Hash: hash, Balances: balances})
		}
		return balances, nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "settlement failed", "trip_id", tripID, "err", err)
		return nil, err
	}
	if shared {
		s.log.DebugContext(ctx, "settlement shared with concurrent request", "trip_id", tripID)
	}
	return v.([]ledger.MonthlyBalance), nil
}

func (s *service) Month(ctx context.Context, tripID uuid.UUID, month ledger.Month) ([]ledger.MonthlyBalance, error) {
	all, err := s.MonthlyBalances(ctx, tripID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.MonthlyBalance, 0)
	for _, b := range all {
		if b.Month == month {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *service) Invalidate(tripID uuid.UUID) {
	if s.cache != nil {
		s.cache.Delete(tripID.String())
	}
}

func runResult(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnprocessable):
		return "invalid"
	case errors.Is(err, errs.ErrUnsupported):
		return "unsupported"
	default:
		return "error"
	}
}

// canonicalExpense holds every field that can change a settlement result.
type canonicalExpense struct {
	ID           string            `json:"id"`
	AmountMinor  int64             `json:"amount_minor"`
	Currency     string            `json:"currency"`
	Installments int               `json:"installments"`
	StartMonth   string            `json:"start_month"`
	PayerID      string            `json:"payer_id"`
	Involved     []string          `json:"involved"`
	SplitType    string            `json:"split_type"`
	Ratios       map[string]string `json:"ratios,omitempty"`
}

// contentHash digests the expense set independent of its order.
func contentHash(expenses []ledger.Expense) (string, error) {
	items := make([]canonicalExpense, 0, len(expenses))
	for _, e := range expenses {
		minor, _ := e.Amount.MinorUnits()
		c := canonicalExpense{
			ID:           e.ID.String(),
			AmountMinor:  minor,
			Currency:     e.Currency(),
			Installments: e.Installments,
			StartMonth:   ledger.MonthOf(e.StartDate).String(),
			PayerID:      e.PayerID,
			Involved:     e.InvolvedUserIDs,
			SplitType:    string(e.EffectiveSplitType()),
		}
		if len(e.SplitRatios) > 0 {
			c.Ratios = make(map[string]string, len(e.SplitRatios))
			for k, v := range e.SplitRatios {
				c.Ratios[k] = v.String()
			}
		}
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}
