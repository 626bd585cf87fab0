package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type exportPhase int

const (
	phaseConnecting exportPhase = iota
	phaseExporting
	phaseComplete
)

type runStartedMsg struct {
	total int
}

type unitStartedMsg struct {
	interval DateInterval
}

type unitCompletedMsg struct {
	outcome   UnitOutcome
	completed int
	total     int
}

type runFinishedMsg struct {
	outcomes []UnitOutcome
}

type exportDoneMsg struct {
	err error
}

type logLineMsg string

var (
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Margin(0, 2)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Margin(0, 2)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFAA00")).
				Bold(true).
				Margin(0, 2)

	progressInfoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Margin(0, 2)
)

// tuiObserver forwards coordinator progress into the running bubbletea
// program. Safe to call from worker goroutines; Send is thread-safe.
type tuiObserver struct {
	program *tea.Program
}

func (o *tuiObserver) RunStarted(total int) {
	o.program.Send(runStartedMsg{total: total})
}

func (o *tuiObserver) UnitStarted(interval DateInterval) {
	o.program.Send(unitStartedMsg{interval: interval})
}

func (o *tuiObserver) UnitCompleted(outcome UnitOutcome, completed, total int) {
	o.program.Send(unitCompletedMsg{outcome: outcome, completed: completed, total: total})
}

func (o *tuiObserver) RunFinished(outcomes []UnitOutcome) {
	o.program.Send(runFinishedMsg{outcomes: outcomes})
}

type progressModel struct {
	phase           exportPhase
	total           int
	completed       int
	inFlight        []DateInterval
	recent          []UnitOutcome
	overallProgress progress.Model
	currentSpinner  spinner.Model
	messages        []string
	startTime       time.Time
	config          *Config
	width           int
	done            bool
	err             error
}

func newProgressModel(config *Config) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	overallProg := progress.New(
		progress.WithScaledGradient("#7CB8FF", "#8CFFF4"),
		progress.WithWidth(60),
	)

	return progressModel{
		phase:           phaseConnecting,
		overallProgress: overallProg,
		currentSpinner:  s,
		messages:        make([]string, 0),
		startTime:       time.Now(),
		config:          config,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.currentSpinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		return m.handleWindowSizeMsg(msg)
	case spinner.TickMsg:
		return m.handleSpinnerTickMsg(msg)
	case progress.FrameMsg:
		return m.handleProgressFrameMsg(msg)
	case runStartedMsg:
		return m.handleRunStartedMsg(msg)
	case unitStartedMsg:
		return m.handleUnitStartedMsg(msg)
	case unitCompletedMsg:
		return m.handleUnitCompletedMsg(msg)
	case runFinishedMsg:
		return m.handleRunFinishedMsg(msg)
	case logLineMsg:
		return m.handleLogLineMsg(msg)
	case exportDoneMsg:
		return m.handleExportDoneMsg(msg)
	}
	return m, nil
}

func (m progressModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" || msg.String() == "q" {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) handleWindowSizeMsg(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.overallProgress.Width = msg.Width - 10
	return m, nil
}

func (m progressModel) handleSpinnerTickMsg(msg spinner.TickMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.currentSpinner, cmd = m.currentSpinner.Update(msg)
	return m, cmd
}

func (m progressModel) handleProgressFrameMsg(msg progress.FrameMsg) (tea.Model, tea.Cmd) {
	updated, cmd := m.overallProgress.Update(msg)
	if pm, ok := updated.(progress.Model); ok {
		m.overallProgress = pm
	}
	return m, cmd
}

func (m progressModel) handleRunStartedMsg(msg runStartedMsg) (tea.Model, tea.Cmd) {
	m.phase = phaseExporting
	m.total = msg.total
	m.completed = 0
	m.recent = make([]UnitOutcome, 0, msg.total)
	m.addMessage(fmt.Sprintf("🚀 Exporting %d interval(s) with %d worker(s)", msg.total, m.config.Workers))
	return m, nil
}

func (m progressModel) handleUnitStartedMsg(msg unitStartedMsg) (tea.Model, tea.Cmd) {
	m.inFlight = append(m.inFlight, msg.interval)
	return m, nil
}

func (m progressModel) handleUnitCompletedMsg(msg unitCompletedMsg) (tea.Model, tea.Cmd) {
	m.completed = msg.completed
	m.total = msg.total
	m.recent = append(m.recent, msg.outcome)

	for i, interval := range m.inFlight {
		if interval.Start.Equal(msg.outcome.Interval.Start) {
			m.inFlight = append(m.inFlight[:i], m.inFlight[i+1:]...)
			break
		}
	}

	if m.total > 0 {
		return m, m.overallProgress.SetPercent(float64(m.completed) / float64(m.total))
	}
	return m, nil
}

func (m progressModel) handleRunFinishedMsg(msg runFinishedMsg) (tea.Model, tea.Cmd) {
	var failed int
	for _, outcome := range msg.outcomes {
		if outcome.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		m.addMessage(fmt.Sprintf("⚠️ Finished with %d failed interval(s)", failed))
	} else {
		m.addMessage("✅ All intervals exported")
	}
	return m, nil
}

func (m progressModel) handleLogLineMsg(msg logLineMsg) (tea.Model, tea.Cmd) {
	m.addMessage(string(msg))
	return m, nil
}

func (m progressModel) handleExportDoneMsg(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	m.phase = phaseComplete
	m.done = true
	m.err = msg.err
	return m, tea.Sequence(tea.ExitAltScreen, tea.Quit)
}

func (m *progressModel) addMessage(message string) {
	m.messages = append(m.messages, message)
	if len(m.messages) > 10 {
		m.messages = m.messages[len(m.messages)-10:]
	}
}

// renderBanner renders the boxed title banner
func (m progressModel) renderBanner() []string {
	var sections []string

	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7CB8FF")).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))

	const boxWidth = 66
	const indent = "   "

	makeLine := func(content string) string {
		visibleWidth := lipgloss.Width(content)
		targetWidth := boxWidth - 4
		padding := targetWidth - visibleWidth
		if padding < 0 {
			padding = 0
		}
		return fmt.Sprintf("%s║  %s%s║", indent, content, strings.Repeat(" ", padding))
	}

	topBorder := indent + "╔" + strings.Repeat("═", boxWidth-2) + "╗"
	bottomBorder := indent + "╚" + strings.Repeat("═", boxWidth-2) + "╝"

	sections = append(sections, "")
	sections = append(sections, topBorder)
	sections = append(sections, makeLine(""))
	sections = append(sections, makeLine("                 "+titleStyle.Render("❄  Snowflake Exporter")))
	sections = append(sections, makeLine(""))
	sections = append(sections, makeLine("      "+subtitleStyle.Render(fmt.Sprintf("Table: %s", m.config.Table))))
	sections = append(sections, makeLine(""))
	sections = append(sections, bottomBorder)
	sections = append(sections, "")

	return sections
}

// renderMessages renders the message log section
func (m progressModel) renderMessages() []string {
	var sections []string
	sections = append(sections, helpStyle.Render("   Log:"))
	if len(m.messages) == 0 {
		sections = append(sections, "     (waiting for operations...)")
	} else {
		for _, msg := range m.messages {
			sections = append(sections, "     "+msg)
		}
	}
	return sections
}

func (m progressModel) renderSeparator() []string {
	separatorWidth := 80
	if m.width > 0 && m.width < 200 {
		separatorWidth = m.width - 6
	}
	separator := "   " + strings.Repeat("─", separatorWidth)
	return []string{"", lipgloss.NewStyle().Foreground(lipgloss.Color("#444")).Render(separator), ""}
}

// renderExportingPhase renders the interval progress and recent results
func (m progressModel) renderExportingPhase() []string {
	var sections []string
	if m.total == 0 {
		return sections
	}

	sections = append(sections, tableHeaderStyle.Render("   Exporting Intervals"))
	sections = append(sections, "")

	overallInfo := fmt.Sprintf("   Overall: %d/%d intervals", m.completed, m.total)
	sections = append(sections, progressInfoStyle.Render(overallInfo))

	viewProgress := m.overallProgress.ViewAs(float64(m.completed) / float64(m.total))
	sections = append(sections, "   "+viewProgress)

	if len(m.inFlight) > 0 {
		var spans []string
		for _, interval := range m.inFlight {
			spans = append(spans, interval.Start.Format(dateLayout))
		}
		stageInfo := fmt.Sprintf("   %s Fetching: %s", m.currentSpinner.View(), strings.Join(spans, ", "))
		sections = append(sections, "")
		sections = append(sections, stageStyle.Render(stageInfo))
	}

	sections = append(sections, "")
	sections = append(sections, m.renderRecentResults()...)
	return sections
}

// renderRecentResults renders the last few completed units
func (m progressModel) renderRecentResults() []string {
	var sections []string
	if len(m.recent) == 0 {
		return sections
	}

	sections = append(sections, tableHeaderStyle.Render("   Recent Results"))
	sections = append(sections, "")

	startIndex := 0
	if len(m.recent) > 5 {
		startIndex = len(m.recent) - 5
	}

	for _, outcome := range m.recent[startIndex:] {
		var line string
		if outcome.Err != nil {
			line = fmt.Sprintf("   ❌ %s to %s - Error: %v",
				outcome.Interval.Start.Format(dateLayout),
				outcome.Interval.End.Format(dateLayout),
				outcome.Err)
		} else {
			line = fmt.Sprintf("   ✅ %s - %d rows (%d bytes)",
				outcome.Artifact.Name, outcome.RowCount, len(outcome.Artifact.Bytes))
		}
		sections = append(sections, line)
	}
	sections = append(sections, "")
	return sections
}

func (m progressModel) View() string {
	if m.done && m.phase == phaseComplete {
		return ""
	}

	var sections []string

	sections = append(sections, m.renderBanner()...)
	sections = append(sections, m.renderMessages()...)
	sections = append(sections, m.renderSeparator()...)

	switch m.phase { //nolint:exhaustive // phaseComplete renders nothing
	case phaseConnecting:
		stageInfo := fmt.Sprintf("   %s Connecting to Snowflake...", m.currentSpinner.View())
		sections = append(sections, stageStyle.Render(stageInfo))
	case phaseExporting:
		sections = append(sections, m.renderExportingPhase()...)
	}

	sections = append(sections, "")
	sections = append(sections, helpStyle.Render("   Press Ctrl+C or 'q' to quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// runWithTUI drives the export under the bubbletea UI. The exporter
// runs on its own goroutine and reports through a tuiObserver; the
// program blocks until the run finishes or the user quits. Quitting
// early cancels the run so we never sit on a detached export with the
// terminal already restored.
func runWithTUI(ctx context.Context, exporter *Exporter, config *Config, task *TaskInfo, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newProgressModel(config)
	program := tea.NewProgram(model, opts...)

	exporter.SetObserver(newTaskObserver(task, &tuiObserver{program: program}))

	errChan := make(chan error, 1)
	go func() {
		err := exporter.Run(ctx)
		errChan <- err
		program.Send(exportDoneMsg{err: err})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-errChan
		return fmt.Errorf("failed to run progress display: %w", err)
	}

	cancel()
	return <-errChan
}
