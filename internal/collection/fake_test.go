package collection

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

type item struct {
	id   string
	name string
}

func (i item) RecordID() string { return i.id }

type listCall struct {
	filter   Filter
	page     int
	pageSize int
}

type bulkCall struct {
	kind   ActionKind
	ids    []string
	fields map[string]string
}

// fakeSource serves an in-memory collection. Filtering matches the "search"
// key as a substring of the item name.
type fakeSource struct {
	mu        sync.Mutex
	items     []item
	lists     []listCall
	bulks     []bulkCall
	listErr   error
	bulkErr   error
	failIDs   map[string]bool
	gates     map[int]chan struct{} // list call index -> release
	listStart chan int
	bulkGate  chan struct{}
	bulkStart chan struct{}
}

func newFakeSource(n int) *fakeSource {
	items := make([]item, n)
	for i := range items {
		id := strconv.Itoa(i + 1)
		items[i] = item{id: id, name: "contact-" + id}
	}
	return &fakeSource{items: items, gates: map[int]chan struct{}{}}
}

// gate makes the n-th list call (0-based) block until the returned channel is closed.
func (f *fakeSource) gate(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[n] = ch
	return ch
}

func (f *fakeSource) ListRecords(ctx context.Context, filter Filter, page, pageSize int) (Page[item], error) {
	f.mu.Lock()
	idx := len(f.lists)
	f.lists = append(f.lists, listCall{filter: filter.Clone(), page: page, pageSize: pageSize})
	gate := f.gates[idx]
	started := f.listStart
	f.mu.Unlock()

	if started != nil {
		started <- idx
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page[item]{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return Page[item]{}, f.listErr
	}

	var matched []item
	for _, it := range f.items {
		if q := filter["search"]; q != "" && !strings.Contains(it.name, q) {
			continue
		}
		matched = append(matched, it)
	}
	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))
	return Page[item]{
		Items:  append([]item(nil), matched[start:end]...),
		Number: page,
		Size:   pageSize,
		Total:  len(matched),
	}, nil
}

func (f *fakeSource) BulkUpdate(ctx context.Context, ids []string, fields map[string]string) (BulkResult, error) {
	return f.bulk(ActionUpdate, ids, fields)
}

func (f *fakeSource) BulkDelete(ctx context.Context, ids []string) (BulkResult, error) {
	return f.bulk(ActionDelete, ids, nil)
}

func (f *fakeSource) bulk(kind ActionKind, ids []string, fields map[string]string) (BulkResult, error) {
	f.mu.Lock()
	gate, started := f.bulkGate, f.bulkStart
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulks = append(f.bulks, bulkCall{kind: kind, ids: append([]string(nil), ids...), fields: fields})
	if f.bulkErr != nil {
		return BulkResult{}, f.bulkErr
	}

	var result BulkResult
	remove := map[string]bool{}
	for _, id := range ids {
		if f.failIDs[id] {
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Affected++
		remove[id] = true
	}
	if kind == ActionDelete {
		kept := f.items[:0]
		for _, it := range f.items {
			if !remove[it.id] {
				kept = append(kept, it)
			}
		}
		f.items = kept
	}
	return result, nil
}

func (f *fakeSource) listCalls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listCall(nil), f.lists...)
}

func (f *fakeSource) bulkCalls() []bulkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bulkCall(nil), f.bulks...)
}

func (f *fakeSource) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

var errRemote = errors.New("remote unavailable")

// sendingSource adds BulkSend, so the controller offers ActionSend.
type sendingSource struct {
	*fakeSource
}

func (s sendingSource) BulkSend(ctx context.Context, ids []string, fields map[string]string) (BulkResult, error) {
	return s.bulk(ActionSend, ids, fields)
}
