package collection

import (
	"context"
	"fmt"
)

type ActionKind string

const (
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	// ActionSend hands the selected records to a sending job described by
	// Fields. The source must implement Sender.
	ActionSend ActionKind = "send"
)

// Action is a bulk operation applied to every selected record.
type Action struct {
	Kind   ActionKind
	Fields map[string]string
}

func Update(fields map[string]string) Action {
	return Action{Kind: ActionUpdate, Fields: fields}
}

func Delete() Action {
	return Action{Kind: ActionDelete}
}

func Send(fields map[string]string) Action {
	return Action{Kind: ActionSend, Fields: fields}
}

// Outcome is the success signal of a bulk action.
type Outcome struct {
	Action    ActionKind
	Requested int
	Affected  int
	Failed    []string
}

// FailedCount returns how many of the requested records were not affected.
func (o Outcome) FailedCount() int {
	if o.Affected >= o.Requested {
		return 0
	}
	return o.Requested - o.Affected
}

// Partial reports whether some, but not all, records were affected.
func (o Outcome) Partial() bool {
	return o.Affected > 0 && o.FailedCount() > 0
}

func (o Outcome) String() string {
	if failed := o.FailedCount(); failed > 0 {
		return fmt.Sprintf("%d succeeded, %d failed", o.Affected, failed)
	}
	switch o.Action {
	case ActionDelete:
		return fmt.Sprintf("%d deleted", o.Affected)
	case ActionSend:
		return fmt.Sprintf("%d queued", o.Affected)
	default:
		return fmt.Sprintf("%d updated", o.Affected)
	}
}

// Confirmer asks the user to approve a delete or send action.
type Confirmer interface {
	Confirm(ctx context.Context, action Action, count int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, action Action, count int) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, action Action, count int) (bool, error) {
	return f(ctx, action, count)
}
