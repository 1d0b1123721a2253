package postgres

import (
	"github.com/tinoosan/tripsettle/internal/service/balance"
	"github.com/tinoosan/tripsettle/internal/service/expense"
	"github.com/tinoosan/tripsettle/internal/service/trip"
)

var (
	_ trip.Repo      = (*Store)(nil)
	_ trip.Writer    = (*Store)(nil)
	_ expense.Repo   = (*Store)(nil)
	_ expense.Writer = (*Store)(nil)
	_ balance.Repo   = (*Store)(nil)
)
