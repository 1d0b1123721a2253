package v1

import (
	"context"

	"github.com/tinoosan/tripsettle/internal/service/balance"
	"github.com/tinoosan/tripsettle/internal/service/expense"
	"github.com/tinoosan/tripsettle/internal/service/trip"
)

// ReadyChecker is implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Store composes every persistence contract the API's services need.
// It is a convenience union satisfied by the memory and postgres stores.
type Store interface {
	trip.Repo
	trip.Writer
	expense.Repo
	expense.Writer
	balance.Repo
	ReadyChecker
}
