package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mcao2/inbox-triage/internal/triage"
)

type ListView struct {
	table       table.Model
	items       []triage.EmailItem
	seen        map[string]bool
	cursor      int
	width       int
	height      int
	visibleRows int // number of data rows visible (excluding header)

	headerStyle   lipgloss.Style
	cellStyle     lipgloss.Style
	selectedStyle lipgloss.Style
	columns       []table.Column
}

func listColumns(width int) []table.Column {
	// Each cell has Padding(0,1): 6 columns add 12 chars, plus 2 of margin.
	fixedWidth := 4 + 9 + 10 + 4 + 22
	padding := 6*2 + 2
	subjectWidth := width - fixedWidth - padding
	if subjectWidth < 20 {
		subjectWidth = 20
	}
	return []table.Column{
		{Title: " ", Width: 4},
		{Title: "Priority", Width: 9},
		{Title: "Category", Width: 10},
		{Title: "Mtg", Width: 4},
		{Title: "From", Width: 22},
		{Title: "Subject", Width: subjectWidth},
	}
}

// rowsFor returns the visible data rows for a terminal height. The rest is
// header(2) + divider(1) + detail pane + status(1) + footer(3) + table header(2).
func rowsFor(height int) int {
	rows := height - 9 - detailPaneHeight
	if rows < 3 {
		rows = 3
	}
	return rows
}

func NewListView(width, height int) ListView {
	columns := listColumns(width)
	visibleRows := rowsFor(height)

	// The bubbles table keeps rows and cursor; View renders them itself.
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(visibleRows+2),
		table.WithFocused(true),
	)

	return ListView{
		table:       t,
		seen:        make(map[string]bool),
		width:       width,
		height:      height,
		visibleRows: visibleRows,
		headerStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true),
		cellStyle: lipgloss.NewStyle().Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")),
		columns: columns,
	}
}

// UpdateTableStyles updates the styles to match the current theme
func (lv *ListView) UpdateTableStyles(theme Theme) {
	lv.headerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(theme.Subtle)).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color(theme.Primary))
	lv.selectedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Background)).
		Background(lipgloss.Color(theme.Primary))
}

// SetItems replaces the rows. The cursor stays put when possible.
func (lv *ListView) SetItems(items []triage.EmailItem) {
	lv.items = items
	if lv.cursor >= len(items) {
		lv.cursor = 0
	}
	lv.updateRows()
	lv.table.SetCursor(lv.cursor)
}

// MarkSeen flags ids processed in an earlier run.
func (lv *ListView) MarkSeen(ids []string) {
	for _, id := range ids {
		lv.seen[id] = true
	}
	lv.updateRows()
}

func (lv *ListView) updateRows() {
	rows := make([]table.Row, len(lv.items))
	for i, item := range lv.items {
		meeting := ""
		if item.MeetingFlag {
			meeting = "Yes"
		}
		rows[i] = table.Row{
			statusText(item.ActionState, lv.seen[item.ID]),
			getPriorityText(item.Priority),
			Truncate(string(item.Category), 10),
			meeting,
			Truncate(senderName(item.Sender), 22),
			item.Subject,
		}
	}
	lv.table.SetRows(rows)
}

func Truncate(s string, maxLen int) string {
	if runewidth.StringWidth(s) > maxLen {
		return runewidth.Truncate(s, maxLen, "…")
	}
	return s
}

func statusText(state triage.ActionState, seen bool) string {
	var b strings.Builder
	if state.Has(triage.ActionReply) {
		b.WriteString("✉")
	}
	if state.Has(triage.ActionEvent) {
		b.WriteString("◷")
	}
	if b.Len() == 0 && seen {
		b.WriteString("·")
	}
	return b.String()
}

func getPriorityText(priority triage.Priority) string {
	switch priority {
	case triage.PriorityHigh:
		return "🔴 High"
	case triage.PriorityMedium:
		return "🟡 Med"
	case triage.PriorityLow:
		return "🟢 Low"
	default:
		return "  —"
	}
}

// senderName strips the address from "Name <addr>" when a name is present.
func senderName(from string) string {
	if i := strings.Index(from, "<"); i > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:i]), `"`); name != "" {
			return name
		}
	}
	return from
}

// detailPaneHeight is the fixed number of lines the detail pane always occupies.
const detailPaneHeight = 5

// DetailView renders the current item, padded to a fixed height.
func (lv *ListView) DetailView(width int, styles Styles) string {
	item := lv.GetItem(lv.cursor)
	if item == nil {
		return ""
	}

	maxWidth := width - 4
	if maxWidth < 20 {
		maxWidth = 20
	}

	var lines []string
	lines = append(lines, styles.Highlight.Render(Truncate(item.Subject, maxWidth)))
	lines = append(lines, styles.Help.Render(Truncate("From: "+item.Sender, maxWidth)))

	meta := []string{
		styles.Priority(item.Priority).Render(string(item.Priority)),
		string(item.Category),
		item.ActionState.String(),
	}
	if item.Analysis == triage.AnalysisFallback {
		meta = append(meta, styles.Error.Render("analysis failed"))
	}
	lines = append(lines, styles.Normal.Render(strings.Join(meta, " · ")))

	if item.Snippet != "" {
		lines = append(lines, styles.HelpDesc.Render(Truncate(item.Snippet, maxWidth)))
	}
	lines = append(lines, styles.Normal.Render(Truncate("Draft: "+oneLine(item.DraftReply), maxWidth)))

	for len(lines) < detailPaneHeight {
		lines = append(lines, "")
	}

	return strings.Join(lines[:detailPaneHeight], "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (lv ListView) Cursor() int {
	return lv.cursor
}

func (lv *ListView) SetCursor(pos int) {
	if pos >= 0 && pos < len(lv.items) {
		lv.cursor = pos
		lv.table.SetCursor(pos)
	}
}

func (lv *ListView) MoveCursor(delta int) {
	lv.SetCursor(lv.cursor + delta)
}

func (lv ListView) GetItem(index int) *triage.EmailItem {
	if index >= 0 && index < len(lv.items) {
		return &lv.items[index]
	}
	return nil
}

func (lv ListView) Len() int {
	return len(lv.items)
}

// renderCell renders a single cell value with the given column width.
func (lv *ListView) renderCell(value string, colWidth int, style lipgloss.Style) string {
	cell := style.Width(colWidth).MaxWidth(colWidth).Inline(true)
	return lv.cellStyle.Render(cell.Render(runewidth.Truncate(value, colWidth, "…")))
}

// View renders the table with its own scrolling window.
func (lv ListView) View(styles Styles) string {
	rows := lv.table.Rows()

	headerCells := make([]string, 0, len(lv.columns))
	for _, col := range lv.columns {
		style := lipgloss.NewStyle().Width(col.Width).MaxWidth(col.Width).Inline(true)
		cell := style.Render(runewidth.Truncate(col.Title, col.Width, "…"))
		headerCells = append(headerCells, lv.headerStyle.Render(lv.cellStyle.Render(cell)))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, headerCells...)

	visibleRows := lv.visibleRows
	if visibleRows <= 0 {
		visibleRows = 10
	}

	start := 0
	if lv.cursor >= visibleRows {
		start = lv.cursor - visibleRows + 1
	}
	end := start + visibleRows
	if end > len(rows) {
		end = len(rows)
		start = end - visibleRows
		if start < 0 {
			start = 0
		}
	}

	renderedRows := make([]string, 0, visibleRows)
	for i := start; i < end; i++ {
		cells := make([]string, 0, len(lv.columns))
		for ci, value := range rows[i] {
			style := lipgloss.NewStyle()
			if ci == 1 && i != lv.cursor {
				style = styles.Priority(lv.items[i].Priority)
			}
			cells = append(cells, lv.renderCell(value, lv.columns[ci].Width, style))
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
		if i == lv.cursor {
			row = lv.selectedStyle.Render(row)
		}
		renderedRows = append(renderedRows, row)
	}

	for len(renderedRows) < visibleRows {
		renderedRows = append(renderedRows, "")
	}

	return header + "\n" + strings.Join(renderedRows, "\n")
}

func (lv *ListView) SetWidthHeight(width, height int) {
	lv.width = width
	lv.height = height
	lv.columns = listColumns(width)
	lv.visibleRows = rowsFor(height)

	lv.table.SetHeight(lv.visibleRows + 2)
	lv.table.SetColumns(lv.columns)
}
