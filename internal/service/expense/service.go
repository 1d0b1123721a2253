// Package expense validates and records trip expenses. Every successful
// mutation is announced through the configured Notifier so cached balances
// can be dropped.
package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/dictionary"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/notify"
	"github.com/tinoosan/tripsettle/internal/settlement"
)

const (
	MaxDescriptionLen = 200
	// MaxBatch bounds a single import.
	MaxBatch = 500
)

// ErrIdempotencyMismatch is returned when an Idempotency-Key is reused for a different expense.
var ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different expense", errs.ErrConflict)

type Repo interface {
	GetTrip(ctx context.Context, id uuid.UUID) (ledger.Trip, error)
	GetExpense(ctx context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error)
	ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error)
	ExpenseByIdempotencyKey(ctx context.Context, tripID uuid.UUID, key string) (ledger.Expense, bool, error)
}

type Writer interface {
	CreateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error)
	// CreateExpenses persists all expenses or none.
	CreateExpenses(ctx context.Context, es []ledger.Expense) ([]ledger.Expense, error)
	UpdateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID uuid.UUID) error
	SaveIdempotencyKey(ctx context.Context, tripID uuid.UUID, key string, expenseID uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, e notify.Event) error
}

type Service interface {
	Validate(ctx context.Context, e ledger.Expense) error
	// Create records e. With a non-empty idempotency key a replay returns the
	// originally created expense and replayed=true.
	Create(ctx context.Context, e ledger.Expense, idempotencyKey string) (created ledger.Expense, replayed bool, err error)
	Update(ctx context.Context, e ledger.Expense) (ledger.Expense, error)
	Delete(ctx context.Context, tripID, expenseID uuid.UUID) error
	Get(ctx context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error)
	List(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error)
	CreateBatch(ctx context.Context, tripID uuid.UUID, drafts []ledger.Expense) ([]ledger.Expense, []ItemError, error)
}

// ItemError represents a per-item failure in a batch operation.
type ItemError struct {
	Index int
	Code  string
	Err   error
}

type service struct {
	repo     Repo
	writer   Writer
	engine   *settlement.Engine
	notifier Notifier
	log      *slog.Logger
}

type Option func(*service)

func WithEngine(e *settlement.Engine) Option { return func(s *service) { s.engine = e } }
func WithNotifier(n Notifier) Option         { return func(s *service) { s.notifier = n } }
func WithLogger(l *slog.Logger) Option       { return func(s *service) { s.log = l } }

func New(repo Repo, writer Writer, opts ...Option) Service {
	s := &service{repo: repo, writer: writer}
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

func fieldErr(id uuid.UUID, field, reason string) error {
	return &settlement.ValidationError{ExpenseID: id, Field: field, Reason: reason}
}

// Validate checks trip membership and the host-level fields, then runs the
// engine's own validation so bad data is rejected before it is stored.
func (s *service) Validate(ctx context.Context, e ledger.Expense) error {
	if e.TripID == uuid.Nil {
		return errs.ErrInvalid
	}
	t, err := s.repo.GetTrip(ctx, e.TripID)
	if err != nil {
		return err
	}
	return s.validateAgainst(t, e)
}

func (s *service) validateAgainst(t ledger.Trip, e ledger.Expense) error {
	if len(e.Description) > MaxDescriptionLen {
		return fieldErr(e.ID, "description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLen))
	}
	if !dictionary.IsCategory(e.Category) {
		return fieldErr(e.ID, "category", "unknown category")
	}
	if e.StartDate.IsZero() {
		return fieldErr(e.ID, "start_date", "is required")
	}
	if e.PayerID != "" && !t.HasParticipant(e.PayerID) {
		return fieldErr(e.ID, "payer_id", "is not a trip participant")
	}
	for _, u := range e.InvolvedUserIDs {
		if u != "" && !t.HasParticipant(u) {
			return fieldErr(e.ID, "involved_user_ids", u+" is not a trip participant")
		}
	}
	if err := e.Metadata.Validate(); err != nil {
		return fieldErr(e.ID, "metadata", err.Error())
	}
	return s.engine.Validate(e)
}

// prepare fills server-assigned fields and defaults on a new expense.
func prepare(e ledger.Expense, tripID uuid.UUID, now time.Time) ledger.Expense {
	e = e.Clone()
	e.ID = uuid.New()
	e.TripID = tripID
	e.Description = strings.TrimSpace(e.Description)
	if e.Category == "" {
		e.Category = ledger.CategoryGeneral
	}
	e.SplitType = e.EffectiveSplitType()
	if e.SplitType == ledger.SplitEqual {
		e.SplitRatios = nil
	}
	e.StartDate = e.StartDate.UTC()
	e.CreatedAt = now
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return e
}

func (s *service) Create(ctx context.Context, e ledger.Expense, idempotencyKey string) (ledger.Expense, bool, error) {
	if e.TripID == uuid.Nil {
		return ledger.Expense{}, false, errs.ErrInvalid
	}
	if idempotencyKey != "" {
		prev, ok, err := s.repo.ExpenseByIdempotencyKey(ctx, e.TripID, idempotencyKey)
		if err != nil {
			return ledger.Expense{}, false, err
		}
		if ok {
			if !sameDraft(prev, e) {
				return ledger.Expense{}, false, ErrIdempotencyMismatch
			}
			return prev, true, nil
		}
	}
	if err := s.Validate(ctx, e); err != nil {
		return ledger.Expense{}, false, err
	}
	created, err := s.writer.CreateExpense(ctx, prepare(e, e.TripID, time.Now().UTC()))
	if err != nil {
		return ledger.Expense{}, false, err
	}
	if idempotencyKey != "" {
		if err := s.writer.SaveIdempotencyKey(ctx, created.TripID, idempotencyKey, created.ID); err != nil {
			s.log.WarnContext(ctx, "saving idempotency key failed", "trip_id", created.TripID, "expense_id", created.ID, "err", err)
		}
	}
	s.announce(ctx, notify.NewEvent(created.TripID, created.ID, notify.OpCreated))
	return created, false, nil
}

// Update replaces the mutable fields of an existing expense. The id, trip and
// creation time always come from the stored expense.
func (s *service) Update(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	if e.TripID == uuid.Nil || e.ID == uuid.Nil {
		return ledger.Expense{}, errs.ErrInvalid
	}
	current, err := s.repo.GetExpense(ctx, e.TripID, e.ID)
	if err != nil {
		return ledger.Expense{}, err
	}
	e = e.Clone()
	e.CreatedAt = current.CreatedAt
	e.Description = strings.TrimSpace(e.Description)
	if e.Category == "" {
		e.Category = ledger.CategoryGeneral
	}
	e.SplitType = e.EffectiveSplitType()
	if e.SplitType == ledger.SplitEqual {
		e.SplitRatios = nil
	}
	e.StartDate = e.StartDate.UTC()
	if err := s.Validate(ctx, e); err != nil {
		return ledger.Expense{}, err
	}
	updated, err := s.writer.UpdateExpense(ctx, e)
	if err != nil {
		return ledger.Expense{}, err
	}
	s.announce(ctx, notify.NewEvent(updated.TripID, updated.ID, notify.OpUpdated))
	return updated, nil
}

func (s *service) Delete(ctx context.Context, tripID, expenseID uuid.UUID) error {
	if tripID == uuid.Nil || expenseID == uuid.Nil {
		return errs.ErrInvalid
	}
	if err := s.writer.DeleteExpense(ctx, tripID, expenseID); err != nil {
		return err
	}
	s.announce(ctx, notify.NewEvent(tripID, expenseID, notify.OpDeleted))
	return nil
}

func (s *service) Get(ctx context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error) {
	if tripID == uuid.Nil || expenseID == uuid.Nil {
		return ledger.Expense{}, errs.ErrInvalid
	}
	return s.repo.GetExpense(ctx, tripID, expenseID)
}

func (s *service) List(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error) {
	if tripID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	if _, err := s.repo.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, tripID)
}

// CreateBatch validates every draft and, if all are valid, stores them atomically.
// If any item fails, nothing is written and per-item errors are returned.
func (s *service) CreateBatch(ctx context.Context, tripID uuid.UUID, drafts []ledger.Expense) ([]ledger.Expense, []ItemError, error) {
	if tripID == uuid.Nil || len(drafts) == 0 {
		return nil, nil, errs.ErrInvalid
	}
	if len(drafts) > MaxBatch {
		return nil, nil, fmt.Errorf("%w: at most %d expenses per batch", errs.ErrInvalid, MaxBatch)
	}
	t, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	itemErrs := make([]ItemError, 0)
	prepared := make([]ledger.Expense, 0, len(drafts))
	for i, d := range drafts {
		d.TripID = tripID
		if err := s.validateAgainst(t, d); err != nil {
			itemErrs = append(itemErrs, ItemError{Index: i, Code: ErrorCode(err), Err: err})
			continue
		}
		prepared = append(prepared, prepare(d, tripID, now))
	}
	if len(itemErrs) > 0 {
		return nil, itemErrs, nil
	}
	created, err := s.writer.CreateExpenses(ctx, prepared)
	if err != nil {
		return nil, nil, err
	}
	s.announce(ctx, notify.NewEvent(tripID, uuid.Nil, notify.OpImported))
	return created, nil, nil
}

// ErrorCode maps validation failures to stable API codes.
func ErrorCode(err error) string {
	var ce *settlement.ConfigurationError
	switch {
	case errors.As(err, &ce):
		return "unsupported_split_type"
	case errors.Is(err, errs.ErrUnprocessable):
		return "validation_error"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	default:
		return "invalid"
	}
}

// announce never fails the mutation; the write has already happened.
func (s *service) announce(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "expense change notification failed", "trip_id", ev.TripID, "expense_id", ev.ExpenseID, "op", ev.Op, "err", err)
	}
}

// sameDraft reports whether a replayed create describes the stored expense.
func sameDraft(stored, draft ledger.Expense) bool {
	sm, _ := stored.Amount.MinorUnits()
	dm, _ := draft.Amount.MinorUnits()
	if sm != dm || stored.Currency() != draft.Currency() {
		return false
	}
	if stored.PayerID != draft.PayerID || stored.Installments != draft.Installments {
		return false
	}
	if ledger.MonthOf(stored.StartDate.UTC()) != ledger.MonthOf(draft.StartDate.UTC()) {
		return false
	}
	if stored.EffectiveSplitType() != draft.EffectiveSplitType() {
		return false
	}
	if len(stored.InvolvedUserIDs) != len(draft.InvolvedUserIDs) {
		return false
	}
	for i := range stored.InvolvedUserIDs {
		if stored.InvolvedUserIDs[i] != draft.InvolvedUserIDs[i] {
			return false
		}
	}
	return true
}
