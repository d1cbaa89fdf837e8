package collection

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySelection = errors.New("no records selected")
	ErrNotConfirmed   = errors.New("bulk action was not confirmed")
	ErrBusy           = errors.New("a bulk action is already in progress")
	ErrPageOutOfRange = errors.New("page out of range")
)

// ValidationError reports a bulk action whose parameters are incomplete.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FetchError wraps a failed list load. The visible state is left as it was.
type FetchError struct {
	Filter Filter
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BulkActionError wraps a remote failure during a bulk action. The selection
// is left untouched so the action can be retried.
type BulkActionError struct {
	Action ActionKind
	Count  int
	Err    error
}

func (e *BulkActionError) Error() string {
	return fmt.Sprintf("failed to %s %d records: %v", e.Action, e.Count, e.Err)
}

func (e *BulkActionError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err was raised before any remote call.
func IsPrecondition(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrNotConfirmed) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrPageOutOfRange) ||
		errors.As(err, &verr)
}
