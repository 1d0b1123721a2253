// Package trip implements trip membership rules: the owner is always a
// participant, ids are unique, and a participant cannot leave while an expense
// still names them.
package trip

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/slug"
)

// MaxParticipants bounds the size of a trip.
const MaxParticipants = 100

type Repo interface {
	GetTrip(ctx context.Context, id uuid.UUID) (ledger.Trip, error)
	ListTrips(ctx context.Context, ownerID string) ([]ledger.Trip, error)
	ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error)
}

type Writer interface {
	CreateTrip(ctx context.Context, t ledger.Trip) (ledger.Trip, error)
	UpdateTrip(ctx context.Context, t ledger.Trip) (ledger.Trip, error)
}

type Service interface {
	ValidateCreate(t ledger.Trip) error
	Create(ctx context.Context, t ledger.Trip) (ledger.Trip, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Trip, error)
	List(ctx context.Context, ownerID string) ([]ledger.Trip, error)
	AddParticipant(ctx context.Context, tripID uuid.UUID, participantID string) (ledger.Trip, error)
	RemoveParticipant(ctx context.Context, tripID uuid.UUID, participantID string) (ledger.Trip, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func invalid(reason string) error { return fmt.Errorf("%w: %s", errs.ErrInvalid, reason) }

// normalize trims ids and puts the owner first when missing from participants.
func normalize(t ledger.Trip) ledger.Trip {
	t.Name = strings.TrimSpace(t.Name)
	t.OwnerID = strings.TrimSpace(t.OwnerID)
	parts := make([]string, 0, len(t.Participants)+1)
	if t.OwnerID != "" {
		parts = append(parts, t.OwnerID)
	}
	for _, p := range t.Participants {
		p = strings.TrimSpace(p)
		if p == t.OwnerID && p != "" {
			continue
		}
		parts = append(parts, p)
	}
	t.Participants = parts
	return t
}

func (s *service) ValidateCreate(t ledger.Trip) error {
	t = normalize(t)
	if t.Name == "" {
		return invalid("name is required")
	}
	if t.OwnerID == "" {
		return invalid("owner_id is required")
	}
	if len(t.Participants) > MaxParticipants {
		return invalid(fmt.Sprintf("at most %d participants", MaxParticipants))
	}
	seen := make(map[string]struct{}, len(t.Participants))
	for _, p := range t.Participants {
		if p == "" {
			return invalid("participant ids must not be empty")
		}
		if _, dup := seen[p]; dup {
			return invalid("duplicate participant " + p)
		}
		seen[p] = struct{}{}
	}
	if err := t.Metadata.Validate(); err != nil {
		return invalid(err.Error())
	}
	return nil
}

func (s *service) Create(ctx context.Context, t ledger.Trip) (ledger.Trip, error) {
	if err := s.ValidateCreate(t); err != nil {
		return ledger.Trip{}, err
	}
	t = normalize(t)
	t.ID = uuid.New()
	t.Slug = slug.ForTrip(t.Name, t.ID)
	t.CreatedAt = time.Now().UTC()
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	return s.writer.CreateTrip(ctx, t)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Trip, error) {
	if id == uuid.Nil {
		return ledger.Trip{}, errs.ErrInvalid
	}
	return s.repo.GetTrip(ctx, id)
}

func (s *service) List(ctx context.Context, ownerID string) ([]ledger.Trip, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalid("owner_id is required")
	}
	return s.repo.ListTrips(ctx, ownerID)
}

// AddParticipant is a no-op when the participant is already a member.
func (s *service) AddParticipant(ctx context.Context, tripID uuid.UUID, participantID string) (ledger.Trip, error) {
	participantID = strings.TrimSpace(participantID)
	if tripID == uuid.Nil || participantID == "" {
		return ledger.Trip{}, invalid("participant_id is required")
	}
	t, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return ledger.Trip{}, err
	}
	if t.HasParticipant(participantID) {
		return t, nil
	}
	if len(t.Participants) >= MaxParticipants {
		return ledger.Trip{}, invalid(fmt.Sprintf("at most %d participants", MaxParticipants))
	}
	t.Participants = append(t.Participants, participantID)
	return s.writer.UpdateTrip(ctx, t)
}

func (s *service) RemoveParticipant(ctx context.Context, tripID uuid.UUID, participantID string) (ledger.Trip, error) {
	if tripID == uuid.Nil || participantID == "" {
		return ledger.Trip{}, errs.ErrInvalid
	}
	t, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return ledger.Trip{}, err
	}
	if !t.HasParticipant(participantID) {
		return ledger.Trip{}, errs.ErrNotFound
	}
	if participantID == t.OwnerID {
		return ledger.Trip{}, fmt.Errorf("%w: the trip owner cannot be removed", errs.ErrForbidden)
	}
	expenses, err := s.repo.ListExpenses(ctx, tripID)
	if err != nil {
		return ledger.Trip{}, err
	}
	for _, e := range expenses {
		if e.References(participantID) {
			return ledger.Trip{}, fmt.Errorf("%w: participant %s is referenced by expense %s", errs.ErrConflict, participantID, e.ID)
		}
	}
	kept := make([]string, 0, len(t.Participants)-1)
	for _, p := range t.Participants {
		if p != participantID {
			kept = append(kept, p)
		}
	}
	t.Participants = kept
	return s.writer.UpdateTrip(ctx, t)
}
