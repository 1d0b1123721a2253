package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/meta"
)

// SplitType selects how a charge is divided between the involved participants.
type SplitType string

const (
	// SplitEqual divides a charge into equal parts, one per involved participant.
	SplitEqual SplitType = "equal"
	// SplitPercentage divides a charge by the percentages in Expense.SplitRatios.
	SplitPercentage SplitType = "percentage"
)

// Category tags an expense for display and filtering. It has no effect on settlement.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryLodging    Category = "lodging"
	CategoryFood       Category = "food"
	CategoryTransport  Category = "transport"
	CategoryActivities Category = "activities"
	CategoryShopping   Category = "shopping"
	CategoryFees       Category = "fees"
)

// Trip groups participants and the expenses they share.
type Trip struct {
	ID      uuid.UUID
	Name    string
	Slug    string
	OwnerID string
	// Participants holds opaque participant ids, owner included.
	Participants []string
	Metadata     meta.Metadata `json:"metadata,omitempty"`
	CreatedAt    time.Time
}

// HasParticipant reports whether id is a member of the trip.
func (t Trip) HasParticipant(id string) bool {
	for _, p := range t.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Expense is one recorded outlay fronted by PayerID and shared by InvolvedUserIDs.
type Expense struct {
	ID          uuid.UUID
	TripID      uuid.UUID
	Description string
	Category    Category
	// Amount is the total charge; its currency is the expense currency.
	Amount money.Amount
	// Installments is the number of consecutive monthly occurrences (1 = single charge).
	Installments int
	StartDate    time.Time
	PayerID      string
	// InvolvedUserIDs may or may not contain the payer.
	InvolvedUserIDs []string
	SplitType       SplitType
	// SplitRatios maps participant id to percentage; only read for SplitPercentage.
	SplitRatios map[string]decimal.Decimal
	Metadata    meta.Metadata `json:"metadata,omitempty"`
	CreatedAt   time.Time
}

// Currency returns the ISO code of the expense amount.
func (e Expense) Currency() string { return e.Amount.Curr().Code() }

// EffectiveSplitType applies the equal-split default.
func (e Expense) EffectiveSplitType() SplitType {
	if e.SplitType == "" {
		return SplitEqual
	}
	return e.SplitType
}

// References reports whether participant id is the payer or among the involved users.
func (e Expense) References(id string) bool {
	if e.PayerID == id {
		return true
	}
	for _, u := range e.InvolvedUserIDs {
		if u == id {
			return true
		}
	}
	return false
}

// MonthlyDebt is one directed settlement instruction. Amount is always positive.
type MonthlyDebt struct {
	DebtorID   string
	CreditorID string
	Amount     money.Amount
}

// Currency returns the ISO code of the debt amount.
func (d MonthlyDebt) Currency() string { return d.Amount.Curr().Code() }

// MonthlyBalance is the minimized debt set for one (month, currency) bucket.
type MonthlyBalance struct {
	Month    Month
	Currency string
	Debts    []MonthlyDebt
}

// Clone returns a copy that shares no slices or maps with t.
func (t Trip) Clone() Trip {
	out := t
	out.Participants = append([]string(nil), t.Participants...)
	out.Metadata = t.Metadata.Clone()
	return out
}

// Clone returns a copy that shares no slices or maps with e.
func (e Expense) Clone() Expense {
	out := e
	out.InvolvedUserIDs = append([]string(nil), e.InvolvedUserIDs...)
	if e.SplitRatios != nil {
		out.SplitRatios = make(map[string]decimal.Decimal, len(e.SplitRatios))
		for k, v := range e.SplitRatios {
			out.SplitRatios[k] = v
		}
	}
	out.Metadata = e.Metadata.Clone()
	return out
}
