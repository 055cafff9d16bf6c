package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/mcao2/inbox-triage/internal/config"
	"github.com/mcao2/inbox-triage/internal/report"
	"github.com/mcao2/inbox-triage/internal/triage"
)

type State int

const (
	StateFetching State = iota
	StateReviewing
	StateEditing
	StateDispatching
	StateMessage
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "Fetching"
	case StateReviewing:
		return "Reviewing"
	case StateEditing:
		return "Editing"
	case StateDispatching:
		return "Dispatching"
	case StateMessage:
		return "Message"
	default:
		return "Unknown"
	}
}

const (
	messageError   = "error"
	messageSuccess = "success"
	messageInfo    = "info"
)

// Starter produces an analyzed run. *triage.Pipeline satisfies it.
type Starter interface {
	Start(ctx context.Context, limit int) (*triage.Run, error)
}

// Options configures the model.
type Options struct {
	Limit     int
	ExportDir string
	// Config receives theme changes; nil disables persistence.
	Config *config.Config
	// Store records processed emails; nil disables it.
	Store  *config.ProcessedStore
	Logger *zap.Logger
	Now    func() time.Time
}

type Model struct {
	ctx     context.Context
	starter Starter
	opts    Options

	state  State
	width  int
	height int
	styles Styles
	keys   KeyMap

	themeIndex int
	showHelp   bool

	run      *triage.Run
	listView ListView
	spinner  spinner.Model
	editForm *EditForm

	busyText      string
	statusMessage string
	messageType   string
	fatal         error
}

// NewModel creates the interactive review UI. The run is fetched when the
// program starts.
func NewModel(ctx context.Context, starter Starter, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Limit = config.ClampLimit(opts.Limit)

	themeNames := GetThemeNames()
	themeIndex := 0
	if opts.Config != nil {
		for i, name := range themeNames {
			if name == opts.Config.Theme {
				themeIndex = i
				break
			}
		}
	}
	theme := Themes[themeNames[themeIndex]]

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Primary))

	m := &Model{
		ctx:        ctx,
		starter:    starter,
		opts:       opts,
		state:      StateFetching,
		styles:     NewStyles(theme),
		keys:       DefaultKeyMap(),
		themeIndex: themeIndex,
		spinner:    s,
		listView:   NewListView(80, 24),
	}
	m.listView.UpdateTableStyles(theme)
	return m
}

// Err returns the error that ended the session, if any.
func (m *Model) Err() error {
	return m.fatal
}

func (m *Model) cycleTheme() {
	themeNames := GetThemeNames()
	m.themeIndex = (m.themeIndex + 1) % len(themeNames)
	newTheme := themeNames[m.themeIndex]
	m.styles = NewStyles(Themes[newTheme])
	m.listView.UpdateTableStyles(Themes[newTheme])
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(Themes[newTheme].Primary))

	if m.opts.Config != nil {
		m.opts.Config.Theme = newTheme
		if err := m.opts.Config.Save(); err != nil {
			m.opts.Logger.Warn("failed to save theme", zap.Error(err))
		}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startFetching())
}

type RunLoadedMsg struct {
	Run *triage.Run
}

type ErrorMsg struct {
	Error error
}

type DispatchFinishedMsg struct {
	Result triage.DispatchResult
	Err    error
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state == StateEditing && m.editForm != nil {
		if k, ok := msg.(tea.KeyMsg); !ok || k.String() != "ctrl+c" {
			return m.updateEditing(msg)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.listView.SetWidthHeight(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case RunLoadedMsg:
		m.loadRun(msg.Run)

	case ErrorMsg:
		var authErr *triage.AuthError
		if errors.As(msg.Error, &authErr) {
			m.fatal = msg.Error
		}
		m.showMessage(messageError, msg.Error.Error())

	case DispatchFinishedMsg:
		m.finishDispatch(msg)
	}

	return m, nil
}

func (m *Model) View() string {
	var content string
	centered := true

	switch m.state {
	case StateFetching:
		content = m.busyView("Fetching Unread Emails")
	case StateDispatching:
		content = m.busyView("Working")
	case StateReviewing:
		content = m.reviewingView()
		centered = false
	case StateEditing:
		content = m.editingView()
	case StateMessage:
		content = m.messageView()
	default:
		return "Unknown state"
	}

	if centered && m.width > 0 && m.height > 0 {
		content = lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}

	return content
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.state {
	case StateMessage:
		return m.handleMessageKeys(msg)
	case StateFetching, StateDispatching:
		if keyMatches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	case StateReviewing:
		return m.handleReviewingKeys(msg)
	}
	return m, nil
}

func (m *Model) startFetching() tea.Cmd {
	m.state = StateFetching
	m.busyText = "Fetching and analyzing emails..."

	ctx, starter, limit := m.ctx, m.starter, m.opts.Limit
	return func() tea.Msg {
		run, err := starter.Start(ctx, limit)
		if err != nil {
			return ErrorMsg{Error: err}
		}
		return RunLoadedMsg{Run: run}
	}
}

func (m *Model) loadRun(run *triage.Run) {
	m.run = run
	if m.opts.Store != nil {
		if n := m.opts.Store.Seed(run); n > 0 {
			m.opts.Logger.Info("restored earlier actions", zap.Int("count", n))
		}
	}
	items := run.Snapshot()

	if m.opts.Store != nil {
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		fresh := make(map[string]bool)
		for _, id := range m.opts.Store.GetUnprocessedIDs(ids) {
			fresh[id] = true
		}
		var seen []string
		for _, id := range ids {
			if !fresh[id] {
				seen = append(seen, id)
			}
		}
		m.listView.MarkSeen(seen)
	}

	m.listView.SetItems(items)
	m.listView.SetCursor(0)
	m.state = StateReviewing
	if len(items) == 0 {
		m.statusMessage = "No unread emails"
	} else {
		m.statusMessage = fmt.Sprintf("Loaded %d unread emails", len(items))
	}
}

func (m *Model) currentItem() *triage.EmailItem {
	if m.run == nil {
		return nil
	}
	return m.listView.GetItem(m.listView.Cursor())
}

func (m *Model) handleReviewingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case keyMatches(msg, m.keys.Quit):
		return m, tea.Quit
	case keyMatches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case keyMatches(msg, m.keys.Up):
		m.listView.MoveCursor(-1)
		return m, nil
	case keyMatches(msg, m.keys.Down):
		m.listView.MoveCursor(1)
		return m, nil
	case keyMatches(msg, m.keys.CycleTheme):
		m.cycleTheme()
		return m, nil
	case keyMatches(msg, m.keys.Refresh):
		return m, tea.Batch(m.spinner.Tick, m.startFetching())
	case keyMatches(msg, m.keys.Export):
		m.exportReport()
		return m, nil
	case keyMatches(msg, m.keys.Copy):
		m.copyReport()
		return m, nil
	}

	item := m.currentItem()
	if item == nil {
		return m, nil
	}

	switch {
	case keyMatches(msg, m.keys.Send):
		return m, m.dispatch(item.ID, triage.ActionReply)
	case keyMatches(msg, m.keys.Event):
		if !item.MeetingFlag {
			m.statusMessage = "No calendar event detected."
			return m, nil
		}
		return m, m.dispatch(item.ID, triage.ActionEvent)
	case keyMatches(msg, m.keys.Enter):
		if item.ActionState.Has(triage.ActionReply) {
			m.showMessage(messageInfo, "Reply already sent; the draft can no longer be edited.")
			return m, nil
		}
		m.editForm = NewEditForm(item)
		m.state = StateEditing
		return m, m.editForm.GetForm().Init()
	}

	return m, nil
}

func (m *Model) dispatch(id string, action triage.Action) tea.Cmd {
	m.state = StateDispatching
	if action == triage.ActionReply {
		m.busyText = "Sending reply..."
	} else {
		m.busyText = "Adding calendar event..."
	}

	ctx, run := m.ctx, m.run
	do := func() tea.Msg {
		var res triage.DispatchResult
		var err error
		if action == triage.ActionReply {
			res, err = run.SendReply(ctx, id)
		} else {
			res, err = run.AddEvent(ctx, id)
		}
		return DispatchFinishedMsg{Result: res, Err: err}
	}
	return tea.Batch(m.spinner.Tick, do)
}

func (m *Model) finishDispatch(msg DispatchFinishedMsg) {
	m.listView.SetItems(m.run.Snapshot())
	res := msg.Result

	if msg.Err != nil {
		var authErr *triage.AuthError
		if errors.As(msg.Err, &authErr) {
			m.fatal = msg.Err
		}
		m.showMessage(messageError, fmt.Sprintf("Could not %s: %v", actionVerb(res.Action), msg.Err))
		return
	}

	switch res.Outcome {
	case triage.OutcomeAlreadyDone:
		if res.Action == triage.ActionReply {
			m.showMessage(messageInfo, "Reply was already sent.")
		} else {
			m.showMessage(messageInfo, "Event was already added.")
		}
		return
	case triage.OutcomeDone:
		m.recordProcessed(res.ItemID)
		if res.Action == triage.ActionReply {
			m.showMessage(messageSuccess, "Reply sent!")
		} else {
			m.showMessage(messageSuccess, "Added to calendar!")
		}
	}
}

func actionVerb(a triage.Action) string {
	if a == triage.ActionEvent {
		return "add event"
	}
	return "send reply"
}

func (m *Model) recordProcessed(id string) {
	if m.opts.Store == nil {
		return
	}
	for _, it := range m.run.Snapshot() {
		if it.ID == id {
			m.opts.Store.Record(it, string(triage.PolicyInteractive))
			break
		}
	}
	if err := m.opts.Store.Save(); err != nil {
		m.opts.Logger.Warn("failed to save processed store", zap.Error(err))
	}
}

func (m *Model) updateEditing(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = k.Width, k.Height
		m.listView.SetWidthHeight(k.Width, k.Height)
	}

	form, cmd := m.editForm.GetForm().Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.editForm.form = f
	}

	switch m.editForm.GetForm().State {
	case huh.StateCompleted:
		m.finishEdit()
		return m, nil
	case huh.StateAborted:
		m.editForm = nil
		m.state = StateReviewing
		return m, nil
	}
	return m, cmd
}

func (m *Model) finishEdit() {
	ef := m.editForm
	m.editForm = nil
	if err := ef.ApplyResult(m.run); err != nil {
		m.showMessage(messageError, fmt.Sprintf("Draft not saved: %v", err))
		return
	}
	m.listView.SetItems(m.run.Snapshot())
	m.state = StateReviewing
	m.statusMessage = "Draft updated"
}

func (m *Model) buildReport() *report.Report {
	return report.FromRun(m.run, m.opts.Now())
}

func (m *Model) exportReport() {
	if m.run == nil {
		return
	}
	jsonPath, textPath, err := report.WriteFiles(m.opts.ExportDir, m.buildReport())
	if err != nil {
		m.showMessage(messageError, fmt.Sprintf("Export failed: %v", err))
		return
	}
	m.showMessage(messageSuccess, fmt.Sprintf("Report written to %s and %s", jsonPath, textPath))
}

func (m *Model) copyReport() {
	if m.run == nil {
		return
	}
	if err := report.CopyText(m.buildReport()); err != nil {
		m.showMessage(messageError, fmt.Sprintf("Copy failed: %v", err))
		return
	}
	m.showMessage(messageSuccess, "Report copied to clipboard")
}

func (m *Model) showMessage(kind, text string) {
	m.messageType = kind
	m.statusMessage = text
	m.state = StateMessage
}

func (m *Model) handleMessageKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.fatal != nil || m.run == nil {
		return m, tea.Quit
	}
	m.state = StateReviewing
	m.statusMessage = ""
	return m, nil
}

func (m *Model) busyView(title string) string {
	status := fmt.Sprintf("%s %s", m.spinner.View(), m.busyText)

	content := m.styles.Border.Render(
		lipgloss.JoinVertical(lipgloss.Center,
			m.styles.Title.Render(title),
			"",
			m.styles.Normal.Render(status),
		),
	)

	help := m.renderHelpLine([]helpEntry{{"q", "quit"}})
	return lipgloss.JoinVertical(lipgloss.Center, "", content, "", help)
}

func (m *Model) reviewingView() string {
	headerLeft := m.styles.HelpKey.Render("Inbox Triage")
	countText := m.styles.HelpDesc.Render(fmt.Sprintf("%d/%d", m.listView.Cursor()+1, m.listView.Len()))
	if m.listView.Len() == 0 {
		countText = m.styles.HelpDesc.Render("0/0")
	}
	headerGap := ""
	if m.width > 0 {
		gap := m.width - lipgloss.Width(headerLeft) - lipgloss.Width(countText) - 4
		if gap > 0 {
			headerGap = strings.Repeat(" ", gap)
		}
	}
	header := m.styles.HeaderBar.Width(max(m.width-1, 1)).Render(headerLeft + headerGap + countText)

	var list string
	if m.listView.Len() == 0 {
		list = m.styles.Normal.Render("  Inbox zero. Nothing to triage.")
	} else {
		list = m.listView.View(m.styles)
	}

	parts := []string{header, list}

	if m.listView.Len() > 0 {
		divider := m.styles.HelpSep.Render(strings.Repeat("─", max(m.width-1, 1)))
		parts = append(parts, divider+"\n"+m.listView.DetailView(m.width, m.styles))
	}
	if m.statusMessage != "" {
		parts = append(parts, m.styles.Help.Render("  "+m.statusMessage))
	}
	if m.showHelp {
		parts = append(parts, m.renderFullHelp())
	} else {
		parts = append(parts, m.renderReviewFooter())
	}

	content := strings.Join(parts, "\n")

	// Pad to the terminal height so the alternate screen repaints cleanly.
	if m.height > 0 {
		rendered := strings.Split(content, "\n")
		for len(rendered) < m.height {
			rendered = append(rendered, "")
		}
		return strings.Join(rendered[:m.height], "\n")
	}
	return content
}

func (m *Model) editingView() string {
	if m.editForm == nil {
		return ""
	}
	return m.styles.Card.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Title.Render("Refine Draft"),
			m.editForm.GetForm().View(),
		),
	)
}

func (m *Model) messageView() string {
	var icon, title string
	var titleStyle lipgloss.Style

	switch m.messageType {
	case messageError:
		icon, title, titleStyle = "✗", "Error", m.styles.Error
	case messageInfo:
		icon, title, titleStyle = "i", "Note", m.styles.Highlight
	default:
		icon, title, titleStyle = "✓", "Success", m.styles.Success
	}

	content := m.styles.Border.Render(
		lipgloss.JoinVertical(lipgloss.Center,
			titleStyle.Render(icon+" "+title),
			"",
			m.styles.Normal.Render(m.statusMessage),
		),
	)

	hint := "continue"
	if m.fatal != nil || m.run == nil {
		hint = "quit"
	}
	help := m.renderHelpLine([]helpEntry{{"any key", hint}})
	return lipgloss.JoinVertical(lipgloss.Center, "", content, "", help)
}

type helpEntry struct {
	key  string
	desc string
}

func (m *Model) renderHelpLine(entries []helpEntry) string {
	var parts []string
	sep := m.styles.HelpSep.Render(" · ")
	for _, e := range entries {
		parts = append(parts, m.styles.HelpKey.Render(e.key)+" "+m.styles.HelpDesc.Render(e.desc))
	}
	return strings.Join(parts, sep)
}

func (m *Model) renderReviewFooter() string {
	line1 := []helpEntry{
		{"j/k", "navigate"},
		{"s", "send reply"},
		{"c", "add to calendar"},
		{"enter", "edit draft"},
	}
	line2 := []helpEntry{
		{"e", "export"},
		{"y", "copy"},
		{"R", "refetch"},
		{"t", "theme"},
		{"?", "help"},
		{"q", "quit"},
	}

	return m.styles.FooterBar.Width(max(m.width-1, 1)).Render(
		m.renderHelpLine(line1) + "\n" + m.renderHelpLine(line2),
	)
}

func (m *Model) renderFullHelp() string {
	sections := []struct {
		title   string
		entries []helpEntry
	}{
		{"Navigation", []helpEntry{
			{"j / ↓", "move down"},
			{"k / ↑", "move up"},
		}},
		{"Actions", []helpEntry{
			{"s", "send the draft reply"},
			{"c / a", "add meeting to calendar (next day)"},
			{"enter", "edit the draft reply"},
		}},
		{"Report", []helpEntry{
			{"e", "write email_report.json and .txt"},
			{"y", "copy text report to clipboard"},
		}},
		{"General", []helpEntry{
			{"R", "fetch again"},
			{"t", "cycle theme"},
			{"?", "toggle this help"},
			{"q / ctrl+c", "quit"},
		}},
	}

	var lines []string
	for _, sec := range sections {
		lines = append(lines, m.styles.HelpKey.Render("  "+sec.title))
		for _, e := range sec.entries {
			lines = append(lines, fmt.Sprintf("    %s  %s",
				m.styles.HelpKey.Render(fmt.Sprintf("%-12s", e.key)),
				m.styles.HelpDesc.Render(e.desc),
			))
		}
	}

	return m.styles.FooterBar.Width(max(m.width-1, 1)).Render(strings.Join(lines, "\n"))
}
