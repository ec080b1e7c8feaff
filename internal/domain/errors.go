package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. InputError and Timeout map to distinct process exit codes;
// an invariant violation indicates an engine bug and is never corrected
// silently.
var (
	// ErrInput covers unreadable files and unusable schemas.
	ErrInput = errors.New("input error")

	// ErrTimeout is returned when the run's deadline expires before assembly.
	ErrTimeout = errors.New("run timed out")

	// ErrInvariant is returned when assembled output contradicts the graph,
	// e.g. a ring referencing an account that was never seen.
	ErrInvariant = errors.New("internal invariant violation")
)

// MalformedRowError names the ledger row and field that failed validation.
// Fatal in strict mode; skipped and counted in lenient mode.
type MalformedRowError struct {
	Row    int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d: field %q: %s", e.Row, e.Field, e.Reason)
}
