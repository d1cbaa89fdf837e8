package collection

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

const DefaultPageSize = 30

// Options configures a Controller.
type Options struct {
	PageSize int
	// RequiredFields must be present and non-empty in every update action.
	RequiredFields []string
	// Confirmer, when set, is asked before every delete and send action.
	Confirmer Confirmer
	Logger    *zap.Logger
}

// request identifies one list fetch. Only the newest request may change the
// visible state.
type request struct {
	seq    uint64
	filter Filter
	page   int
}

// Controller mediates between a remote Source and a UI: it owns the filter,
// the visible page and the cross-page selection.
//
// All methods are safe for concurrent use. Remote calls are made without the
// lock held, so a UI can run them in the background and keep handling input.
type Controller[R Record] struct {
	src       Source[R]
	pageSize  int
	required  []string
	confirmer Confirmer
	log       *zap.Logger

	mu         sync.Mutex
	seq        uint64
	wanted     request // latest requested filter and page
	filter     Filter  // filter of the visible page
	page       Page[R]
	fetched    bool
	loading    bool
	submitting bool
	selection  *Selection
	// added holds the ids the previous SelectAllOnPage call inserted, so an
	// immediately repeated call restores the prior selection.
	added  []string
	err    error
	failed *request
}

// View is a consistent snapshot of the controller state for rendering.
type View[R Record] struct {
	Items          []R
	Page           int
	PageSize       int
	Total          int
	TotalPages     int
	Filter         Filter
	Selected       []string
	SelectedOnPage int
	Loading        bool
	Submitting     bool
	Fetched        bool
	Err            error
}

func New[R Record](src Source[R], opts Options) *Controller[R] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller[R]{
		src:       src,
		pageSize:  opts.PageSize,
		required:  slices.Clone(opts.RequiredFields),
		confirmer: opts.Confirmer,
		log:       opts.Logger,
		wanted:    request{filter: Filter{}, page: 1},
		filter:    Filter{},
		page:      Page[R]{Number: 1, Size: opts.PageSize},
		selection: NewSelection(),
	}
}

// Load fetches the page that is currently wanted. Use it for the first load
// and for plain refreshes.
func (c *Controller[R]) Load(ctx context.Context) error {
	c.mu.Lock()
	filter, page := c.wanted.filter, c.wanted.page
	c.mu.Unlock()
	return c.fetch(ctx, filter, page)
}

// Retry repeats the last failed fetch, or refreshes when nothing failed.
func (c *Controller[R]) Retry(ctx context.Context) error {
	c.mu.Lock()
	failed := c.failed
	c.mu.Unlock()
	if failed == nil {
		return c.Load(ctx)
	}
	return c.fetch(ctx, failed.filter, failed.page)
}

// SetFilter merges key=value into the filter and loads page 1. An empty value
// clears the key.
func (c *Controller[R]) SetFilter(ctx context.Context, key, value string) error {
	c.mu.Lock()
	next := c.wanted.filter.With(key, value)
	c.mu.Unlock()
	return c.fetch(ctx, next, 1)
}

// ClearFilters starts a new search: the filter and the selection are emptied
// and page 1 is loaded.
func (c *Controller[R]) ClearFilters(ctx context.Context) error {
	c.mu.Lock()
	c.added = nil
	c.selection.Clear()
	c.mu.Unlock()
	return c.fetch(ctx, Filter{}, 1)
}

// SetPage loads page n. Pages outside 1..TotalPages are rejected with
// ErrPageOutOfRange and nothing is fetched.
func (c *Controller[R]) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	last := c.lastPageLocked()
	filter := c.wanted.filter
	c.mu.Unlock()

	if n < 1 || n > last {
		return fmt.Errorf("%w: %d not in 1..%d", ErrPageOutOfRange, n, last)
	}
	return c.fetch(ctx, filter, n)
}

func (c *Controller[R]) NextPage(ctx context.Context) error {
	c.mu.Lock()
	n := c.wanted.page + 1
	c.mu.Unlock()
	return c.SetPage(ctx, n)
}

func (c *Controller[R]) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	n := c.wanted.page - 1
	c.mu.Unlock()
	return c.SetPage(ctx, n)
}

// ToggleSelect flips the selection of id and reports whether it is now selected.
func (c *Controller[R]) ToggleSelect(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = nil
	return c.selection.Toggle(id)
}

// SelectAllOnPage is the single select-all control of a list. When every
// record on the visible page is selected it deselects the page, otherwise it
// selects the whole page. It reports whether the page ended up selected. An
// empty page is left alone.
//
// Two consecutive calls with no other mutation in between restore the
// selection the first call started from.
func (c *Controller[R]) SelectAllOnPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.page.IDs()
	if len(ids) == 0 {
		return false
	}
	if c.selection.ContainsAll(ids) {
		if c.added != nil {
			c.selection.Remove(c.added...)
		} else {
			c.selection.Remove(ids...)
		}
		c.added = nil
		return false
	}

	added := make([]string, 0, len(ids))
	for _, id := range ids {
		if !c.selection.Has(id) {
			added = append(added, id)
		}
	}
	c.selection.Add(added...)
	c.added = added
	return true
}

// Select adds ids to the selection. Ids already selected stay selected.
func (c *Controller[R]) Select(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = nil
	c.selection.Add(ids...)
}

func (c *Controller[R]) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = nil
	c.selection.Clear()
}

func (c *Controller[R]) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Has(id)
}

// Selection returns the selected ids, sorted.
func (c *Controller[R]) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.IDs()
}

func (c *Controller[R]) View() View[R] {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.page.IDs()
	return View[R]{
		Items:          slices.Clone(c.page.Items),
		Page:           c.page.Number,
		PageSize:       c.page.Size,
		Total:          c.page.Total,
		TotalPages:     c.page.TotalPages(),
		Filter:         c.filter.Clone(),
		Selected:       c.selection.IDs(),
		SelectedOnPage: c.selection.Count(ids),
		Loading:        c.loading,
		Submitting:     c.submitting,
		Fetched:        c.fetched,
		Err:            c.err,
	}
}

// BulkApply runs action against every selected record.
//
// Preconditions are checked before any remote call: an empty selection fails
// with ErrEmptySelection, an incomplete update or send, or a send the source
// cannot do, with *ValidationError and a declined delete or send with
// ErrNotConfirmed. A remote failure returns
// *BulkActionError and keeps the selection. On success the submitted ids
// leave the selection, except those the remote side reported as failed, and
// the visible page is reloaded. A fully successful action therefore empties
// the selection, while a partial one leaves exactly the failed ids selected
// so the action can be repeated for them.
func (c *Controller[R]) BulkApply(ctx context.Context, action Action) (Outcome, error) {
	c.mu.Lock()
	busy := c.submitting
	ids := c.selection.IDs()
	c.mu.Unlock()

	if busy {
		return Outcome{}, ErrBusy
	}
	if len(ids) == 0 {
		return Outcome{}, ErrEmptySelection
	}
	if err := c.validate(action); err != nil {
		return Outcome{}, err
	}
	if action.Kind != ActionUpdate && c.confirmer != nil {
		ok, err := c.confirmer.Confirm(ctx, action, len(ids))
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to confirm %s: %w", action.Kind, err)
		}
		if !ok {
			return Outcome{}, ErrNotConfirmed
		}
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	c.submitting = true
	c.mu.Unlock()

	result, err := c.apply(ctx, action, ids)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("bulk action failed",
			zap.String("action", string(action.Kind)),
			zap.Int("count", len(ids)),
			zap.Error(err))
		return Outcome{}, &BulkActionError{Action: action.Kind, Count: len(ids), Err: err}
	}

	failed := make(map[string]bool, len(result.Failed))
	for _, id := range result.Failed {
		failed[id] = true
	}
	for _, id := range ids {
		if !failed[id] {
			c.selection.Remove(id)
		}
	}
	c.added = nil
	c.mu.Unlock()

	outcome := Outcome{
		Action:    action.Kind,
		Requested: len(ids),
		Affected:  min(result.Affected, len(ids)),
		Failed:    slices.Clone(result.Failed),
	}
	c.log.Info("bulk action applied",
		zap.String("action", string(action.Kind)),
		zap.Int("requested", outcome.Requested),
		zap.Int("affected", outcome.Affected))

	// The action itself succeeded; a failed reload is kept in View().Err.
	if err := c.Load(ctx); err != nil {
		c.log.Warn("reload after bulk action failed", zap.Error(err))
	}
	return outcome, nil
}

func (c *Controller[R]) validate(action Action) error {
	switch action.Kind {
	case ActionDelete:
		return nil
	case ActionUpdate:
		if len(action.Fields) == 0 {
			return &ValidationError{Field: "fields", Reason: "nothing to update"}
		}
		for _, field := range c.required {
			if action.Fields[field] == "" {
				return &ValidationError{Field: field, Reason: "is required"}
			}
		}
		return nil
	case ActionSend:
		if _, ok := c.src.(Sender); !ok {
			return &ValidationError{Field: "action", Reason: "sending is not supported"}
		}
		if len(action.Fields) == 0 {
			return &ValidationError{Field: "fields", Reason: "nothing to send"}
		}
		return nil
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action.Kind)}
	}
}

func (c *Controller[R]) apply(ctx context.Context, action Action, ids []string) (BulkResult, error) {
	switch action.Kind {
	case ActionDelete:
		return c.src.BulkDelete(ctx, ids)
	case ActionSend:
		return c.src.(Sender).BulkSend(ctx, ids, action.Fields)
	}
	return c.src.BulkUpdate(ctx, ids, action.Fields)
}

// fetch issues a new list request that supersedes every earlier one. The
// result is applied only if no newer request was issued in the meantime;
// otherwise it is dropped, error included, and fetch returns nil.
func (c *Controller[R]) fetch(ctx context.Context, filter Filter, page int) error {
	c.mu.Lock()
	c.seq++
	req := request{seq: c.seq, filter: filter.Clone(), page: page}
	c.wanted = req
	c.loading = true
	c.mu.Unlock()

	result, err := c.src.ListRecords(ctx, req.filter.Clone(), req.page, c.pageSize)

	c.mu.Lock()
	if req.seq != c.seq {
		c.mu.Unlock()
		c.log.Debug("dropping superseded page",
			zap.Uint64("request", req.seq),
			zap.Int("page", req.page))
		return nil
	}
	c.loading = false

	if err != nil {
		ferr := &FetchError{Filter: req.filter.Clone(), Page: req.page, Err: err}
		c.err = ferr
		c.failed = &req
		c.wanted = request{seq: req.seq, filter: c.filter.Clone(), page: c.page.Number}
		c.mu.Unlock()
		c.log.Warn("page load failed", zap.Int("page", req.page), zap.Error(err))
		return ferr
	}

	result.Number = req.page
	if result.Size <= 0 {
		result.Size = c.pageSize
	}
	c.filter = req.filter
	c.page = result
	c.added = nil
	c.fetched = true
	c.err = nil
	c.failed = nil

	// A shrinking collection can leave the wanted page past the end.
	last := c.lastPageLocked()
	c.mu.Unlock()

	if req.page > last {
		return c.fetch(ctx, req.filter, last)
	}
	return nil
}

func (c *Controller[R]) lastPageLocked() int {
	return max(c.page.TotalPages(), 1)
}
