package settlement

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// ValidationError reports a malformed expense. The whole settlement run aborts on it.
type ValidationError struct {
	ExpenseID uuid.UUID
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("expense %s: %s: %s", e.ExpenseID, e.Field, e.Reason)
}

// Is lets callers match with errors.Is(err, errs.ErrUnprocessable).
func (e *ValidationError) Is(target error) bool { return target == errs.ErrUnprocessable }

// ConfigurationError reports a split type the engine does not implement.
type ConfigurationError struct {
	ExpenseID uuid.UUID
	SplitType ledger.SplitType
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("expense %s: unsupported split_type %q", e.ExpenseID, e.SplitType)
}

func (e *ConfigurationError) Is(target error) bool { return target == errs.ErrUnsupported }

func invalid(id uuid.UUID, field, reason string) error {
	return &ValidationError{ExpenseID: id, Field: field, Reason: reason}
}
