// Package tui is the interactive contact browser.
package tui

import (
	"context"
	"errors"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"wacrm/internal/collection"
	"wacrm/internal/models"
)

// Catalog supplies the move targets and the drafts that can be sent.
type Catalog interface {
	Categories(ctx context.Context) ([]models.Category, error)
	Drafts(ctx context.Context) ([]models.Draft, error)
}

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeMove
	modeConfirmDelete
	modeSend
	modeConfirmSend
)

// Messages produced by the commands below.
type (
	// loadedMsg follows any controller call that may have changed the page.
	loadedMsg struct{ err error }

	bulkDoneMsg struct {
		outcome collection.Outcome
		err     error
	}

	categoriesMsg struct {
		categories []models.Category
		err        error
	}

	draftsMsg struct {
		drafts []models.Draft
		err    error
	}
)

// Model hosts one contact controller. Controller calls run as commands, so
// the UI keeps handling keys while a page loads.
type Model struct {
	ctx     context.Context
	ctrl    *collection.Controller[models.Contact]
	catalog Catalog

	view   collection.View[models.Contact]
	table  table.Model
	search textinput.Model
	mode   mode
	status string
	errMsg string

	moveTargets []models.Category
	moveCursor  int

	drafts      []models.Draft
	draftCursor int

	width  int
	height int
	styles styles
}

func New(ctx context.Context, ctrl *collection.Controller[models.Contact], catalog Catalog) Model {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	si := textinput.New()
	si.Placeholder = "name, phone or email"
	si.Prompt = "search: "
	si.CharLimit = 100
	si.Width = 40

	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		catalog: catalog,
		table:   t,
		search:  si,
		styles:  defaultStyles(),
	}
	m.refresh()
	return m
}

// Run starts the full-screen browser and blocks until the user quits.
func Run(ctx context.Context, ctrl *collection.Controller[models.Contact], catalog Catalog) error {
	_, err := tea.NewProgram(New(ctx, ctrl, catalog), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return m.call(m.ctrl.Load)
}

func (m Model) call(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return loadedMsg{err: fn(ctx)}
	}
}

func (m Model) bulk(action collection.Action) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		outcome, err := ctrl.BulkApply(ctx, action)
		return bulkDoneMsg{outcome: outcome, err: err}
	}
}

func (m Model) loadCategories() tea.Cmd {
	ctx, catalog := m.ctx, m.catalog
	return func() tea.Msg {
		categories, err := catalog.Categories(ctx)
		return categoriesMsg{categories: categories, err: err}
	}
}

func (m Model) loadDrafts() tea.Cmd {
	ctx, catalog := m.ctx, m.catalog
	return func() tea.Msg {
		drafts, err := catalog.Drafts(ctx)
		return draftsMsg{drafts: drafts, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(msg.Width))
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case loadedMsg:
		m.refresh()
		m.errMsg = m.fetchError()
		var ferr *collection.FetchError
		if msg.err != nil && !errors.As(msg.err, &ferr) {
			m.errMsg = describe(msg.err)
		}
		return m, nil

	case bulkDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.errMsg = describe(msg.err)
		} else {
			m.status = msg.outcome.String()
			m.errMsg = m.fetchError()
		}
		return m, nil

	case categoriesMsg:
		if msg.err != nil {
			m.mode = modeBrowse
			m.errMsg = "loading categories: " + msg.err.Error()
			return m, nil
		}
		m.moveTargets = append([]models.Category{{Name: "(no category)"}}, msg.categories...)
		m.moveCursor = 0
		return m, nil

	case draftsMsg:
		if msg.err != nil {
			m.mode = modeBrowse
			m.errMsg = "loading drafts: " + msg.err.Error()
			return m, nil
		}
		if len(msg.drafts) == 0 {
			m.mode = modeBrowse
			m.errMsg = "no drafts yet, create one with: wacrm drafts create"
			return m, nil
		}
		m.drafts = msg.drafts
		m.draftCursor = 0
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeMove:
			return m.updateMove(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		case modeSend:
			return m.updateSend(msg)
		case modeConfirmSend:
			return m.updateConfirmSend(msg)
		}
		return m.updateBrowse(msg)
	}

	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.mode = modeSearch
		m.search.SetValue(m.view.Filter[models.FilterSearch])
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd
	case " ":
		if id, ok := m.currentID(); ok {
			m.ctrl.ToggleSelect(id)
			m.refresh()
		}
		return m, nil
	case "a":
		m.ctrl.SelectAllOnPage()
		m.refresh()
		return m, nil
	case "esc":
		m.ctrl.ClearSelection()
		m.refresh()
		return m, nil
	case "n", "right":
		return m.page(m.ctrl.NextPage)
	case "p", "left":
		return m.page(m.ctrl.PrevPage)
	case "r":
		return m, m.call(m.ctrl.Retry)
	case "x":
		return m, m.call(m.ctrl.ClearFilters)
	case "m":
		if len(m.view.Selected) == 0 {
			m.errMsg = describe(collection.ErrEmptySelection)
			return m, nil
		}
		m.mode = modeMove
		m.errMsg = ""
		m.moveTargets = nil
		return m, m.loadCategories()
	case "d":
		if len(m.view.Selected) == 0 {
			m.errMsg = describe(collection.ErrEmptySelection)
			return m, nil
		}
		m.mode = modeConfirmDelete
		m.errMsg = ""
		return m, nil
	case "s":
		if len(m.view.Selected) == 0 {
			m.errMsg = describe(collection.ErrEmptySelection)
			return m, nil
		}
		m.mode = modeSend
		m.errMsg = ""
		m.drafts = nil
		return m, m.loadDrafts()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// page ignores moves past the first or last page.
func (m Model) page(move func(context.Context) error) (tea.Model, tea.Cmd) {
	ctx := m.ctx
	return m, func() tea.Msg {
		err := move(ctx)
		if errors.Is(err, collection.ErrPageOutOfRange) {
			return nil
		}
		return loadedMsg{err: err}
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.search.Blur()
		return m, nil
	case "enter":
		m.mode = modeBrowse
		m.search.Blur()
		value := m.search.Value()
		return m, m.call(func(ctx context.Context) error {
			return m.ctrl.SetFilter(ctx, models.FilterSearch, value)
		})
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateMove(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = modeBrowse
		return m, nil
	case "up", "k":
		if m.moveCursor > 0 {
			m.moveCursor--
		}
	case "down", "j":
		if m.moveCursor < len(m.moveTargets)-1 {
			m.moveCursor++
		}
	case "enter":
		if len(m.moveTargets) == 0 {
			return m, nil
		}
		target := m.moveTargets[m.moveCursor]
		value := models.CategoryNone
		if target.ID > 0 {
			value = strconv.FormatInt(target.ID, 10)
		}
		m.mode = modeBrowse
		m.status = "moving..."
		return m, m.bulk(collection.Update(map[string]string{models.FieldCategoryID: value}))
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = modeBrowse
		m.status = "deleting..."
		return m, m.bulk(collection.Delete())
	case "n", "N", "esc", "q":
		m.mode = modeBrowse
		m.status = "delete cancelled"
	}
	return m, nil
}

func (m Model) updateSend(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = modeBrowse
	case "up", "k":
		if m.draftCursor > 0 {
			m.draftCursor--
		}
	case "down", "j":
		if m.draftCursor < len(m.drafts)-1 {
			m.draftCursor++
		}
	case "enter":
		if len(m.drafts) > 0 {
			m.mode = modeConfirmSend
		}
	}
	return m, nil
}

func (m Model) updateConfirmSend(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		draft := m.drafts[m.draftCursor]
		m.mode = modeBrowse
		m.status = "queueing..."
		return m, m.bulk(collection.Send(map[string]string{
			models.FieldDraftID: strconv.FormatInt(draft.ID, 10),
		}))
	case "n", "N", "esc", "q":
		m.mode = modeBrowse
		m.status = "send cancelled"
	}
	return m, nil
}

func (m Model) currentID() (string, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.view.Items) {
		return "", false
	}
	return m.view.Items[i].RecordID(), true
}

// refresh re-reads the controller state into the table.
func (m *Model) refresh() {
	prevPage := m.view.Page
	m.view = m.ctrl.View()

	selected := make(map[string]bool, len(m.view.Selected))
	for _, id := range m.view.Selected {
		selected[id] = true
	}

	rows := make([]table.Row, 0, len(m.view.Items))
	for _, c := range m.view.Items {
		rows = append(rows, contactRow(c, selected[c.RecordID()]))
	}
	m.table.SetRows(rows)

	if m.view.Page != prevPage || m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
}

// fetchError describes the controller's current load failure. A superseded
// request reports nil, so the message must not be taken from it.
func (m Model) fetchError() string {
	if m.view.Err == nil {
		return ""
	}
	return describe(m.view.Err)
}

func describe(err error) string {
	var verr *collection.ValidationError
	var berr *collection.BulkActionError
	var ferr *collection.FetchError
	switch {
	case errors.Is(err, collection.ErrEmptySelection):
		return "select contacts first (space or a)"
	case errors.Is(err, collection.ErrBusy):
		return "another action is still running"
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &berr):
		return berr.Error() + " (selection kept, try again)"
	case errors.As(err, &ferr):
		return ferr.Error() + " (press r to retry)"
	}
	return err.Error()
}
