// Package collection implements a paginated, filterable and multi-selectable
// view over a remote record collection, with bulk actions applied to the
// selection.
package collection

import (
	"context"
	"maps"
)

// Record is any entity with a stable unique identifier.
type Record interface {
	RecordID() string
}

// Filter maps a filter key to its current value. A missing key means no
// constraint.
type Filter map[string]string

// With returns a copy of f with key set to value. An empty value removes the key.
func (f Filter) With(key, value string) Filter {
	next := f.Clone()
	if value == "" {
		delete(next, key)
		return next
	}
	next[key] = value
	return next
}

func (f Filter) Clone() Filter {
	next := make(Filter, len(f))
	maps.Copy(next, f)
	return next
}

func (f Filter) Equal(other Filter) bool {
	return maps.Equal(f, other)
}

// Page is one window of the collection.
type Page[R Record] struct {
	Items  []R
	Number int
	Size   int
	Total  int
}

// TotalPages returns ceil(Total / Size).
func (p Page[R]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}

// IDs returns the identifiers of the page items in display order.
func (p Page[R]) IDs() []string {
	ids := make([]string, len(p.Items))
	for i, item := range p.Items {
		ids[i] = item.RecordID()
	}
	return ids
}

// BulkResult is what the remote side reports after a bulk action.
// Failed lists the ids it could not apply the action to, when it knows them.
type BulkResult struct {
	Affected int
	Failed   []string
}

// Source is the remote collaborator that owns the records.
type Source[R Record] interface {
	ListRecords(ctx context.Context, filter Filter, page, pageSize int) (Page[R], error)
	BulkUpdate(ctx context.Context, ids []string, fields map[string]string) (BulkResult, error)
	BulkDelete(ctx context.Context, ids []string) (BulkResult, error)
}

// Sender is implemented by sources that support ActionSend.
type Sender interface {
	BulkSend(ctx context.Context, ids []string, fields map[string]string) (BulkResult, error)
}
