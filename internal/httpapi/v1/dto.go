package v1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/meta"
	"github.com/tinoosan/tripsettle/internal/settlement"
)

// Trips

type postTripRequest struct {
	Name         string            `json:"name"`
	OwnerID      string            `json:"owner_id"`
	Participants []string          `json:"participants"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type participantRequest struct {
	ParticipantID string `json:"participant_id"`
}

type tripResponse struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	OwnerID      string        `json:"owner_id"`
	Participants []string      `json:"participants"`
	Metadata     meta.Metadata `json:"metadata,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type listTripsResponse struct {
	Trips []tripResponse `json:"trips"`
}

func toTripResponse(t ledger.Trip) tripResponse {
	ps := t.Participants
	if ps == nil {
		ps = []string{}
	}
	return tripResponse{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		OwnerID:      t.OwnerID,
		Participants: ps,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
	}
}

// Expenses

// dateValue accepts either a calendar date or an RFC 3339 timestamp. A timestamp
// keeps the calendar date written in its own offset.
type dateValue time.Time

func (d *dateValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("start_date must be a string")
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*d = dateValue(t)
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("start_date must be YYYY-MM-DD or RFC3339")
	}
	*d = dateValue(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	return nil
}

func (d dateValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).UTC().Format(time.RFC3339))
}

type postExpenseRequest struct {
	Description     string                 `json:"description"`
	Category        ledger.Category        `json:"category,omitempty"`
	AmountMinor     int64                  `json:"amount_minor"`
	Currency        string                 `json:"currency"`
	Installments    *int                   `json:"installments,omitempty"`
	StartDate       *dateValue             `json:"start_date"`
	PayerID         string                 `json:"payer_id"`
	InvolvedUserIDs []string               `json:"involved_user_ids"`
	SplitType       ledger.SplitType       `json:"split_type,omitempty"`
	SplitRatios     map[string]json.Number `json:"split_ratios,omitempty"`
	Metadata        map[string]string      `json:"metadata,omitempty"`
}

// patchExpenseRequest only carries the fields the client wants to change.
type patchExpenseRequest struct {
	Description     *string                `json:"description,omitempty"`
	Category        *ledger.Category       `json:"category,omitempty"`
	AmountMinor     *int64                 `json:"amount_minor,omitempty"`
	Currency        *string                `json:"currency,omitempty"`
	Installments    *int                   `json:"installments,omitempty"`
	StartDate       *dateValue             `json:"start_date,omitempty"`
	PayerID         *string                `json:"payer_id,omitempty"`
	InvolvedUserIDs []string               `json:"involved_user_ids,omitempty"`
	SplitType       *ledger.SplitType      `json:"split_type,omitempty"`
	SplitRatios     map[string]json.Number `json:"split_ratios,omitempty"`
	Metadata        map[string]string      `json:"metadata,omitempty"`
}

type postExpensesBatchRequest struct {
	Expenses []postExpenseRequest `json:"expenses"`
}

type expenseResponse struct {
	ID              uuid.UUID         `json:"id"`
	TripID          uuid.UUID         `json:"trip_id"`
	Description     string            `json:"description,omitempty"`
	Category        ledger.Category   `json:"category"`
	AmountMinor     int64             `json:"amount_minor"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	Installments    int               `json:"installments"`
	StartDate       string            `json:"start_date"`
	PayerID         string            `json:"payer_id"`
	InvolvedUserIDs []string          `json:"involved_user_ids"`
	SplitType       ledger.SplitType  `json:"split_type"`
	SplitRatios     map[string]string `json:"split_ratios,omitempty"`
	Metadata        meta.Metadata     `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type listExpensesResponse struct {
	Expenses []expenseResponse `json:"expenses"`
}

type batchItemError struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func toExpenseResponse(e ledger.Expense) expenseResponse {
	units, _ := e.Amount.MinorUnits()
	out := expenseResponse{
		ID:              e.ID,
		TripID:          e.TripID,
		Description:     e.Description,
		Category:        e.Category,
		AmountMinor:     units,
		Amount:          e.Amount.Decimal().String(),
		Currency:        e.Currency(),
		Installments:    e.Installments,
		StartDate:       e.StartDate.UTC().Format(time.DateOnly),
		PayerID:         e.PayerID,
		InvolvedUserIDs: e.InvolvedUserIDs,
		SplitType:       e.EffectiveSplitType(),
		Metadata:        e.Metadata,
		CreatedAt:       e.CreatedAt,
	}
	if out.InvolvedUserIDs == nil {
		out.InvolvedUserIDs = []string{}
	}
	if len(e.SplitRatios) > 0 {
		out.SplitRatios = make(map[string]string, len(e.SplitRatios))
		for id, r := range e.SplitRatios {
			out.SplitRatios[id] = r.String()
		}
	}
	return out
}

// amountOf builds a money amount from the wire representation.
func amountOf(id uuid.UUID, currency string, minor int64) (money.Amount, error) {
	curr, err := money.ParseCurr(strings.TrimSpace(currency))
	if err != nil {
		return money.Amount{}, &settlement.ValidationError{ExpenseID: id, Field: "currency", Reason: "unknown currency " + fmt.Sprintf("%q", currency)}
	}
	amt, err := money.NewAmountFromMinorUnits(curr.Code(), minor)
	if err != nil {
		return money.Amount{}, &settlement.ValidationError{ExpenseID: id, Field: "amount_minor", Reason: err.Error()}
	}
	return amt, nil
}

func ratiosOf(id uuid.UUID, raw map[string]json.Number) (map[string]decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for pid, n := range raw {
		d, err := decimal.Parse(n.String())
		if err != nil {
			return nil, &settlement.ValidationError{ExpenseID: id, Field: "split_ratios", Reason: fmt.Sprintf("ratio for %q is not a number", pid)}
		}
		out[pid] = d
	}
	return out, nil
}

// toExpenseDomain converts a create request into a draft expense for tripID.
// Conversion failures are reported as settlement.ValidationError.
func toExpenseDomain(tripID uuid.UUID, req postExpenseRequest) (ledger.Expense, error) {
	e := ledger.Expense{
		TripID:          tripID,
		Description:     strings.TrimSpace(req.Description),
		Category:        req.Category,
		Installments:    1,
		PayerID:         strings.TrimSpace(req.PayerID),
		InvolvedUserIDs: req.InvolvedUserIDs,
		SplitType:       req.SplitType,
	}
	if req.Installments != nil {
		e.Installments = *req.Installments
	}
	if req.StartDate == nil {
		return ledger.Expense{}, &settlement.ValidationError{Field: "start_date", Reason: "required"}
	}
	e.StartDate = time.Time(*req.StartDate)
	amt, err := amountOf(uuid.Nil, req.Currency, req.AmountMinor)
	if err != nil {
		return ledger.Expense{}, err
	}
	e.Amount = amt
	if e.SplitRatios, err = ratiosOf(uuid.Nil, req.SplitRatios); err != nil {
		return ledger.Expense{}, err
	}
	if req.Metadata != nil {
		e.Metadata = meta.New(req.Metadata)
	}
	return e, nil
}

// applyPatch overlays the fields present in req onto a copy of e.
func applyPatch(e ledger.Expense, req patchExpenseRequest) (ledger.Expense, error) {
	out := e.Clone()
	if req.Description != nil {
		out.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		out.Category = *req.Category
	}
	if req.AmountMinor != nil || req.Currency != nil {
		minor, _ := e.Amount.MinorUnits()
		if req.AmountMinor != nil {
			minor = *req.AmountMinor
		}
		currency := e.Currency()
		if req.Currency != nil {
			currency = *req.Currency
		}
		amt, err := amountOf(e.ID, currency, minor)
		if err != nil {
			return ledger.Expense{}, err
		}
		out.Amount = amt
	}
	if req.Installments != nil {
		out.Installments = *req.Installments
	}
	if req.StartDate != nil {
		out.StartDate = time.Time(*req.StartDate)
	}
	if req.PayerID != nil {
		out.PayerID = strings.TrimSpace(*req.PayerID)
	}
	if req.InvolvedUserIDs != nil {
		out.InvolvedUserIDs = append([]string(nil), req.InvolvedUserIDs...)
	}
	if req.SplitType != nil {
		out.SplitType = *req.SplitType
	}
	if req.SplitRatios != nil {
		r, err := ratiosOf(e.ID, req.SplitRatios)
		if err != nil {
			return ledger.Expense{}, err
		}
		out.SplitRatios = r
	}
	if req.Metadata != nil {
		if out.Metadata == nil {
			out.Metadata = meta.New(nil)
		}
		out.Metadata.Merge(meta.New(req.Metadata))
	}
	return out, nil
}

// Balances

type debtResponse struct {
	DebtorID    string `json:"debtor_id"`
	CreditorID  string `json:"creditor_id"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type monthlyBalanceResponse struct {
	Month    ledger.Month   `json:"month"`
	Currency string         `json:"currency"`
	Debts    []debtResponse `json:"debts"`
}

type balancesResponse struct {
	TripID   uuid.UUID                `json:"trip_id"`
	Balances []monthlyBalanceResponse `json:"balances"`
}

func toBalancesResponse(tripID uuid.UUID, bs []ledger.MonthlyBalance) balancesResponse {
	out := balancesResponse{TripID: tripID, Balances: make([]monthlyBalanceResponse, 0, len(bs))}
	for _, b := range bs {
		mb := monthlyBalanceResponse{Month: b.Month, Currency: b.Currency, Debts: make([]debtResponse, 0, len(b.Debts))}
		for _, d := range b.Debts {
			units, _ := d.Amount.MinorUnits()
			mb.Debts = append(mb.Debts, debtResponse{
				DebtorID:    d.DebtorID,
				CreditorID:  d.CreditorID,
				AmountMinor: units,
				Amount:      d.Amount.Decimal().String(),
				Currency:    d.Currency(),
			})
		}
		out.Balances = append(out.Balances, mb)
	}
	return out
}
