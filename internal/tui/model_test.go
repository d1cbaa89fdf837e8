package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wacrm/internal/collection"
	"wacrm/internal/models"
)

type memorySource struct {
	mu       sync.Mutex
	contacts []models.Contact
	listErr  error
	updates  []map[string]string
	deleted  []string
	sent     []string
	skip     map[string]bool
}

func newMemorySource(n int) *memorySource {
	s := &memorySource{}
	for i := 1; i <= n; i++ {
		s.contacts = append(s.contacts, models.Contact{
			ID:    int64(i),
			Name:  fmt.Sprintf("Contact %02d", i),
			Phone: fmt.Sprintf("3161234%04d", i),
		})
	}
	return s
}

func (s *memorySource) ListRecords(_ context.Context, filter collection.Filter, page, pageSize int) (collection.Page[models.Contact], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return collection.Page[models.Contact]{}, s.listErr
	}

	var matched []models.Contact
	for _, c := range s.contacts {
		if q := filter[models.FilterSearch]; q != "" && !strings.Contains(c.Name, q) {
			continue
		}
		matched = append(matched, c)
	}

	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))
	return collection.Page[models.Contact]{
		Items:  append([]models.Contact(nil), matched[start:end]...),
		Number: page,
		Size:   pageSize,
		Total:  len(matched),
	}, nil
}

func (s *memorySource) BulkUpdate(_ context.Context, ids []string, fields map[string]string) (collection.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, fields)
	return collection.BulkResult{Affected: len(ids)}, nil
}

func (s *memorySource) BulkDelete(_ context.Context, ids []string) (collection.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ids...)

	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	kept := s.contacts[:0]
	for _, c := range s.contacts {
		if !gone[strconv.FormatInt(c.ID, 10)] {
			kept = append(kept, c)
		}
	}
	s.contacts = kept
	return collection.BulkResult{Affected: len(ids)}, nil
}

func (s *memorySource) BulkSend(_ context.Context, ids []string, fields map[string]string) (collection.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, fields)
	var result collection.BulkResult
	for _, id := range ids {
		if s.skip[id] {
			result.Failed = append(result.Failed, id)
			continue
		}
		s.sent = append(s.sent, id)
		result.Affected++
	}
	return result, nil
}

type staticCatalog struct {
	categories []models.Category
	drafts     []models.Draft
}

func (c staticCatalog) Categories(context.Context) ([]models.Category, error) {
	return c.categories, nil
}

func (c staticCatalog) Drafts(context.Context) ([]models.Draft, error) {
	return c.drafts, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends one key and runs the resulting command, feeding its message
// back into the model.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(key(k))
	return settle(t, next.(Model), cmd)
}

func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	switch msg.(type) {
	case loadedMsg, bulkDoneMsg, categoriesMsg, draftsMsg:
		next, _ := m.Update(msg)
		return next.(Model)
	}
	return m
}

func newModel(t *testing.T, src *memorySource) Model {
	t.Helper()
	ctrl := collection.New[models.Contact](src, collection.Options{PageSize: 5})
	catalog := staticCatalog{
		categories: []models.Category{{ID: 7, Name: "Customers"}, {ID: 9, Name: "Leads"}},
		drafts:     []models.Draft{{ID: 3, Title: "Welcome"}, {ID: 4, Title: "Offer"}},
	}
	m := New(context.Background(), ctrl, catalog)
	return settle(t, m, m.Init())
}

func TestInitialLoad(t *testing.T) {
	m := newModel(t, newMemorySource(12))

	assert.Equal(t, 1, m.view.Page)
	assert.Equal(t, 3, m.view.TotalPages)
	assert.Len(t, m.table.Rows(), 5)
	assert.Contains(t, m.View(), "Page 1/3")
	assert.Contains(t, m.View(), "12 contacts")
}

func TestSelectionAcrossPages(t *testing.T) {
	m := newModel(t, newMemorySource(12))

	m = press(t, m, " ")
	assert.Equal(t, []string{"1"}, m.view.Selected)
	assert.Equal(t, "[x]", m.table.Rows()[0][0])

	m = press(t, m, "n")
	assert.Equal(t, 2, m.view.Page)
	m = press(t, m, "a")
	assert.Len(t, m.view.Selected, 6)
	assert.Contains(t, m.View(), "6 selected (5 on this page)")

	m = press(t, m, "a")
	assert.Equal(t, []string{"1"}, m.view.Selected, "second select-all restores the earlier selection")

	m = press(t, m, "esc")
	assert.Empty(t, m.view.Selected)
}

func TestPagingStopsAtEdges(t *testing.T) {
	m := newModel(t, newMemorySource(7))

	m = press(t, m, "p")
	assert.Equal(t, 1, m.view.Page)
	assert.Empty(t, m.errMsg)

	m = press(t, m, "n")
	m = press(t, m, "n")
	assert.Equal(t, 2, m.view.Page)
	assert.Empty(t, m.errMsg)
}

func TestSearch(t *testing.T) {
	m := newModel(t, newMemorySource(12))

	next, _ := m.Update(key("/"))
	m = next.(Model)
	require.Equal(t, modeSearch, m.mode)

	for _, r := range "Contact 1" {
		next, _ = m.Update(key(string(r)))
		m = next.(Model)
	}
	m = press(t, m, "enter")

	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, "Contact 1", m.view.Filter[models.FilterSearch])
	assert.Equal(t, 3, m.view.Total)
	assert.Contains(t, m.View(), "[search=Contact 1]")

	m = press(t, m, "x")
	assert.Empty(t, m.view.Filter)
	assert.Equal(t, 12, m.view.Total)
}

func TestMoveToCategory(t *testing.T) {
	src := newMemorySource(6)
	m := newModel(t, src)

	m = press(t, m, "m")
	assert.Equal(t, modeBrowse, m.mode, "nothing selected")
	assert.Contains(t, m.errMsg, "select contacts first")

	m = press(t, m, "a")
	m = press(t, m, "m")
	require.Equal(t, modeMove, m.mode)
	require.Len(t, m.moveTargets, 3)
	assert.Contains(t, m.View(), "Move 5 contacts to:")

	m = press(t, m, "down")
	m = press(t, m, "enter")

	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, "5 updated", m.status)
	assert.Empty(t, m.view.Selected)
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]string{models.FieldCategoryID: "7"}, src.updates[0])
}

func TestMoveToNoCategory(t *testing.T) {
	src := newMemorySource(3)
	m := newModel(t, src)

	m = press(t, m, " ")
	m = press(t, m, "m")
	m = press(t, m, "enter")

	require.Len(t, src.updates, 1)
	assert.Equal(t, models.CategoryNone, src.updates[0][models.FieldCategoryID])
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	src := newMemorySource(6)
	m := newModel(t, src)

	m = press(t, m, " ")
	m = press(t, m, "d")
	require.Equal(t, modeConfirmDelete, m.mode)
	assert.Contains(t, m.View(), "Delete 1 contacts?")

	m = press(t, m, "n")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, "delete cancelled", m.status)
	assert.Empty(t, src.deleted)
	assert.Equal(t, []string{"1"}, m.view.Selected)

	m = press(t, m, "d")
	m = press(t, m, "y")
	assert.Equal(t, []string{"1"}, src.deleted)
	assert.Equal(t, "1 deleted", m.status)
	assert.Equal(t, 5, m.view.Total)
}

func TestFetchErrorAndRetry(t *testing.T) {
	src := newMemorySource(6)
	m := newModel(t, src)

	src.mu.Lock()
	src.listErr = errors.New("connection refused")
	src.mu.Unlock()

	m = press(t, m, "n")
	assert.Contains(t, m.errMsg, "press r to retry")
	assert.Equal(t, 1, m.view.Page, "failed fetch keeps the visible page")

	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()

	m = press(t, m, "r")
	assert.Empty(t, m.errMsg)
	assert.Equal(t, 2, m.view.Page)
}

func TestStaleLoadKeepsFetchError(t *testing.T) {
	src := newMemorySource(6)
	m := newModel(t, src)

	src.mu.Lock()
	src.listErr = errors.New("down")
	src.mu.Unlock()
	m = press(t, m, "n")
	require.Contains(t, m.errMsg, "press r to retry")

	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()
	// A fetch superseded by the failing one completes late and reports nil.
	next, _ := m.Update(loadedMsg{})
	m = next.(Model)

	assert.Contains(t, m.errMsg, "failed to load page 2")
	assert.Contains(t, m.errMsg, "press r to retry")
	assert.Error(t, m.view.Err)
	assert.Equal(t, 1, m.view.Page)
}

func TestQuit(t *testing.T) {
	m := newModel(t, newMemorySource(1))
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSendDraft(t *testing.T) {
	src := newMemorySource(6)
	src.skip = map[string]bool{"2": true}
	m := newModel(t, src)

	m = press(t, m, "s")
	assert.Equal(t, modeBrowse, m.mode, "nothing selected")
	assert.Contains(t, m.errMsg, "select contacts first")

	m = press(t, m, " ")
	m = press(t, m, "down")
	m = press(t, m, " ")
	m = press(t, m, "s")
	require.Equal(t, modeSend, m.mode)
	require.Len(t, m.drafts, 2)
	assert.Contains(t, m.View(), "Send a draft to 2 contacts:")

	m = press(t, m, "down")
	m = press(t, m, "enter")
	require.Equal(t, modeConfirmSend, m.mode)
	assert.Contains(t, m.View(), `Send "Offer" to 2 contacts?`)

	m = press(t, m, "n")
	assert.Equal(t, "send cancelled", m.status)
	assert.Empty(t, src.sent)

	m = press(t, m, "s")
	m = press(t, m, "enter")
	m = press(t, m, "y")
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]string{models.FieldDraftID: "3"}, src.updates[0])
	assert.Equal(t, []string{"1"}, src.sent)
	assert.Equal(t, "1 succeeded, 1 failed", m.status)
	assert.Equal(t, []string{"2"}, m.view.Selected, "skipped contacts stay selected")
}

func TestSendWithoutDrafts(t *testing.T) {
	ctrl := collection.New[models.Contact](newMemorySource(3), collection.Options{PageSize: 5})
	m := New(context.Background(), ctrl, staticCatalog{})
	m = settle(t, m, m.Init())

	m = press(t, m, " ")
	m = press(t, m, "s")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Contains(t, m.errMsg, "no drafts yet")
}
