package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"wacrm/internal/models"
)

type styles struct {
	title    lipgloss.Style
	subtle   lipgloss.Style
	status   lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	cursor   lipgloss.Style
	selected lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#25D366")),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warn:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		selected: lipgloss.NewStyle().Bold(true),
	}
}

func columns(width int) []table.Column {
	name := max(width-63, 16)
	return []table.Column{
		{Title: " ", Width: 3},
		{Title: "Name", Width: name},
		{Title: "Phone", Width: 16},
		{Title: "Category", Width: 20},
		{Title: "WhatsApp", Width: 9},
	}
}

func contactRow(c models.Contact, selected bool) table.Row {
	mark := "[ ]"
	if selected {
		mark = "[x]"
	}
	category := c.CategoryName
	if c.CategoryID == nil {
		category = "-"
	}
	wa := "?"
	if c.OnWhatsApp != nil {
		wa = "no"
		if *c.OnWhatsApp {
			wa = "yes"
		}
	}
	return table.Row{mark, c.Name, "+" + c.Phone, category, wa}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Contacts"))
	if filters := describeFilter(m.view.Filter); filters != "" {
		b.WriteString(m.styles.subtle.Render("  " + filters))
	}
	b.WriteString("\n\n")

	switch {
	case !m.view.Fetched && m.view.Loading:
		b.WriteString(m.styles.subtle.Render("Loading contacts..."))
		b.WriteString("\n")
	case m.view.Fetched && m.view.Total == 0:
		b.WriteString(m.styles.subtle.Render("No contacts match the current filters."))
		b.WriteString("\n")
	default:
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	b.WriteString(m.footer())
	b.WriteString("\n")

	switch m.mode {
	case modeSearch:
		b.WriteString(m.search.View())
		b.WriteString("\n")
	case modeMove:
		b.WriteString(m.movePicker())
	case modeConfirmDelete:
		b.WriteString(m.styles.warn.Render(fmt.Sprintf("Delete %d contacts? This cannot be undone. [y/N]", len(m.view.Selected))))
		b.WriteString("\n")
	case modeSend:
		b.WriteString(m.draftPicker())
	case modeConfirmSend:
		draft := m.drafts[m.draftCursor]
		b.WriteString(m.styles.warn.Render(fmt.Sprintf("Send %q to %d contacts? [y/N]", draft.Title, len(m.view.Selected))))
		b.WriteString("\n")
	}

	if m.errMsg != "" {
		b.WriteString(m.styles.err.Render(m.errMsg))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(m.styles.status.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.subtle.Render("space select  a page  esc clear  / search  x reset  n/p page  m move  s send  d delete  r retry  q quit"))
	return b.String()
}

func (m Model) footer() string {
	page := fmt.Sprintf("Page %d/%d", m.view.Page, max(m.view.TotalPages, 1))
	parts := []string{page, fmt.Sprintf("%d contacts", m.view.Total)}
	if n := len(m.view.Selected); n > 0 {
		parts = append(parts, m.styles.selected.Render(fmt.Sprintf("%d selected (%d on this page)", n, m.view.SelectedOnPage)))
	}
	switch {
	case m.view.Submitting:
		parts = append(parts, "working...")
	case m.view.Loading:
		parts = append(parts, "loading...")
	}
	return strings.Join(parts, " · ")
}

func (m Model) movePicker() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Move %d contacts to:\n", len(m.view.Selected)))
	if m.moveTargets == nil {
		b.WriteString(m.styles.subtle.Render("  loading categories..."))
		b.WriteString("\n")
		return b.String()
	}
	for i, c := range m.moveTargets {
		line := "  " + c.Name
		if i == m.moveCursor {
			line = m.styles.cursor.Render("> " + c.Name)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) draftPicker() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Send a draft to %d contacts:\n", len(m.view.Selected)))
	if m.drafts == nil {
		b.WriteString(m.styles.subtle.Render("  loading drafts..."))
		b.WriteString("\n")
		return b.String()
	}
	for i, d := range m.drafts {
		line := "  " + d.Title
		if i == m.draftCursor {
			line = m.styles.cursor.Render("> " + d.Title)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func describeFilter(f map[string]string) string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return "[" + strings.Join(parts, " ") + "]"
}
