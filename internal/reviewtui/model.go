package reviewtui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle   = lipgloss.NewStyle().Faint(true)
	boldStyle  = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	addStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	delStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hunkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Faint(true).Width(10)

	helpStyle = lipgloss.NewStyle().PaddingTop(1)
)

var titleCaser = cases.Title(language.English)

// headerLines is the height reserved above the diff viewport.
const headerLines = 9

type loadedMsg struct {
	err error
}

type detailsLoadedMsg struct{}

type actionDoneMsg struct {
	ok bool
}

// Model is the bubbletea model of the review queue.
type Model struct {
	ctx     context.Context
	session *dispatch.Session
	keys    keyMap
	help    help.Model
	diff    viewport.Model

	width   int
	height  int
	busy    bool
	err     error
	status  *logging.Entry
	shownID string
}

// New builds the model. Stages load when the program starts.
func New(ctx context.Context, session *dispatch.Session) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	return Model{
		ctx:     ctx,
		session: session,
		keys:    defaultKeyMap(),
		help:    help.New(),
		diff:    viewport.New(80, 20),
	}
}

func (m Model) Init() tea.Cmd {
	return m.loadCmd()
}

func (m Model) loadCmd() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return loadedMsg{err: session.LoadAll(ctx)}
	}
}

// detailsCmd loads the focused item's detail once per focus change.
func (m Model) detailsCmd() tea.Cmd {
	nav := m.session.Navigator()
	current, ok := nav.Current()
	if !ok || current.Number <= 0 {
		return nil
	}
	details := nav.Details()
	if details.ItemID == current.ID && (details.Loading || details.Record != nil || details.Error != "") {
		return nil
	}
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		session.LoadCurrentDetails(ctx)
		return detailsLoadedMsg{}
	}
}

func actionCmd(ctx context.Context, coordinator *batch.Coordinator[pipeline.Item], item pipeline.Item) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{ok: coordinator.ProcessSingle(ctx, item)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.diff.Width = msg.Width
		m.diff.Height = max(3, msg.Height-headerLines-2)
		return m, nil

	case loadedMsg:
		m.err = msg.err
		m.captureStatus()
		m.refreshContent()
		return m, m.detailsCmd()

	case detailsLoadedMsg:
		m.captureStatus()
		m.refreshContent()
		return m, nil

	case actionDoneMsg:
		m.busy = false
		m.captureStatus()
		m.refreshContent()
		return m, m.detailsCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	nav := m.session.Navigator()
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.next):
		if nav.GoToNext() {
			m.refreshContent()
			return m, m.detailsCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.prev):
		if nav.GoToPrevious() {
			m.refreshContent()
			return m, m.detailsCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.reload):
		if m.busy || m.stagesLoading() {
			return m, nil
		}
		m.err = nil
		return m, m.loadCmd()
	case key.Matches(msg, m.keys.approve):
		return m.act(m.session.ReviewApprove)
	case key.Matches(msg, m.keys.merge):
		return m.act(m.session.ReviewMerge)
	}
	var cmd tea.Cmd
	m.diff, cmd = m.diff.Update(msg)
	return m, cmd
}

// act runs coordinator on the focused item. One action runs at a time.
func (m Model) act(coordinator *batch.Coordinator[pipeline.Item]) (tea.Model, tea.Cmd) {
	if m.busy || coordinator == nil {
		return m, nil
	}
	current, ok := m.session.Navigator().Current()
	if !ok {
		return m, nil
	}
	m.busy = true
	return m, actionCmd(m.ctx, coordinator, current)
}

func (m Model) stagesLoading() bool {
	for _, status := range m.session.Stages() {
		if status.Loading {
			return true
		}
	}
	return false
}

func (m *Model) captureStatus() {
	entries, _ := m.session.Sink().Tail(1)
	if len(entries) == 1 {
		entry := entries[0]
		m.status = &entry
	}
}

// refreshContent rebuilds the viewport for the focused item, resetting the
// scroll position when focus moved.
func (m *Model) refreshContent() {
	nav := m.session.Navigator()
	current, ok := nav.Current()
	if !ok {
		m.diff.SetContent("")
		m.shownID = ""
		return
	}
	details := nav.Details()
	var b strings.Builder
	switch {
	case details.ItemID != current.ID || details.Loading:
		b.WriteString(dimStyle.Render("Loading details..."))
	case details.Error != "":
		b.WriteString(errStyle.Render(details.Error))
	case details.Record != nil:
		b.WriteString(renderDetail(details.Record))
	default:
		b.WriteString(dimStyle.Render("No details for this item"))
	}
	m.diff.SetContent(b.String())
	if m.shownID != current.ID {
		m.diff.GotoTop()
		m.shownID = current.ID
	}
}

func renderDetail(detail *dispatch.ReviewDetail) string {
	var b strings.Builder
	if body := strings.TrimSpace(detail.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s %s in %d file(s)\n",
		addStyle.Render(fmt.Sprintf("+%d", detail.Additions)),
		delStyle.Render(fmt.Sprintf("-%d", detail.Deletions)),
		len(detail.Files))
	for _, file := range detail.Files {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("+%d -%d", file.Additions, file.Deletions)), file.Path)
	}
	if diff := strings.TrimRight(detail.Diff, "\n"); diff != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(diff, "\n") {
			b.WriteString(colorDiffLine(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func colorDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return boldStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return hunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return addStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return delStyle.Render(line)
	default:
		return line
	}
}

func (m Model) View() string {
	nav := m.session.Navigator()
	index, total := nav.Position()

	var b strings.Builder
	header := titleStyle.Render("Review queue")
	if total > 0 {
		header += dimStyle.Render(fmt.Sprintf("  %d/%d", index+1, total))
	}
	b.WriteString(header + "\n\n")

	current, ok := nav.Current()
	switch {
	case !ok && m.stagesLoading():
		b.WriteString(dimStyle.Render("Loading stages...") + "\n")
	case !ok:
		b.WriteString(okStyle.Render("Nothing waiting for review") + "\n")
	default:
		b.WriteString(renderItem(current))
		b.WriteString("\n")
		b.WriteString(m.diff.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errStyle.Render("Some stages failed to load; press r to retry") + "\n")
	}
	if m.busy {
		b.WriteString(dimStyle.Render("Working...") + "\n")
	} else if m.status != nil {
		b.WriteString(renderStatus(*m.status) + "\n")
	}
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func renderItem(item pipeline.Item) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render(strings.TrimSpace(item.Repo+" "+item.Identifier)) + "\n")
	b.WriteString(item.Title + "\n")
	b.WriteString(labelStyle.Render("Status") + statusLabel(item.Status) + "\n")
	b.WriteString(labelStyle.Render("Pipeline") + fmt.Sprintf("%s, stage %d of %d", titleCaser.String(string(item.Family)), item.CurrentStage, item.TotalStages) + "\n")
	if ref := item.RepoRef(); ref != item.Repo {
		b.WriteString(labelStyle.Render("Fork") + ref + "\n")
	}
	return b.String()
}

func statusLabel(status pipeline.Status) string {
	label := titleCaser.String(strings.ReplaceAll(string(status), "_", " "))
	if status == pipeline.StatusReady {
		return okStyle.Render(label)
	}
	return warnStyle.Render(label)
}

func renderStatus(entry logging.Entry) string {
	switch entry.Severity {
	case logging.SeveritySuccess:
		return okStyle.Render(entry.Message)
	case logging.SeverityWarning:
		return warnStyle.Render(entry.Message)
	case logging.SeverityError:
		return errStyle.Render(entry.Message)
	default:
		return infoStyle.Render(entry.Message)
	}
}
