package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/graphseed/internal/pipeline"
	"github.com/ShayCichocki/graphseed/internal/workflow"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

// maxActivity is the number of worker actions kept on screen.
const maxActivity = 8

// EventMsg carries an engine progress event.
type EventMsg struct {
	Event workflow.Event
}

// ActionMsg carries a worker action (thought, tool call, answer).
type ActionMsg struct {
	Action pipeline.Action
}

// DoneMsg signals that the run has returned.
type DoneMsg struct {
	Err error
}

// StageState is the displayed state of one stage.
type StageState struct {
	Name    string
	Status  models.StageStatus
	Running bool
	Elapsed time.Duration
	Err     string
}

// ProgressModel is the bubbletea model for a single workflow run.
type ProgressModel struct {
	workflow string
	runID    string
	stages   []StageState
	activity []string
	cleanup  string
	spinner  spinner.Model
	elapsed  time.Duration
	done     bool
	err      error
	width    int

	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	doneStyle    lipgloss.Style
	failStyle    lipgloss.Style
	pendingStyle lipgloss.Style
	dimStyle     lipgloss.Style
}

// NewProgressModel creates a model for the named workflow.
func NewProgressModel(workflowName string) *ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &ProgressModel{
		workflow: workflowName,
		spinner:  sp,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
	}
}

// NewProgressProgram creates the program and its model.
func NewProgressProgram(workflowName string) (*tea.Program, *ProgressModel) {
	m := NewProgressModel(workflowName)
	return tea.NewProgram(m), m
}

// Init implements tea.Model.
func (m *ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case EventMsg:
		m.apply(msg.Event)
	case ActionMsg:
		m.record(msg.Action)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		for i := range m.stages {
			m.stages[i].Running = false
		}
	}
	return m, nil
}

func (m *ProgressModel) apply(ev workflow.Event) {
	if ev.RunID != "" {
		m.runID = ev.RunID
	}
	switch ev.Kind {
	case workflow.EventRunStarted:
		m.stages = make([]StageState, len(ev.Stages))
		for i, name := range ev.Stages {
			m.stages[i] = StageState{Name: name, Status: models.StageStatusPending}
		}
	case workflow.EventStageStarted:
		if s := m.stage(ev.Index); s != nil {
			s.Running = true
		}
	case workflow.EventStageDone:
		if s := m.stage(ev.Index); s != nil {
			s.Running = false
			s.Status = ev.Status
			s.Elapsed = ev.Elapsed
			if ev.Err != nil {
				s.Err = ev.Err.Error()
			}
		}
	case workflow.EventCleanupStarted:
		m.cleanup = "removing isolated nodes..."
	case workflow.EventCleanupDone:
		if ev.Err != nil {
			m.cleanup = "failed: " + ev.Err.Error()
		} else {
			m.cleanup = fmt.Sprintf("removed %d isolated node(s)", ev.Removed)
		}
	case workflow.EventRunDone:
		m.elapsed = ev.Elapsed
	}
}

func (m *ProgressModel) stage(i int) *StageState {
	if i < 0 || i >= len(m.stages) {
		return nil
	}
	return &m.stages[i]
}

func (m *ProgressModel) record(a pipeline.Action) {
	var line string
	switch a.Kind {
	case pipeline.ActionToolCall:
		line = fmt.Sprintf("%s → %s", a.Stage, a.Capability)
	case pipeline.ActionToolResult:
		if a.Err != nil {
			line = fmt.Sprintf("%s ← %s failed: %v", a.Stage, a.Capability, a.Err)
		} else {
			line = fmt.Sprintf("%s ← %s", a.Stage, a.Capability)
		}
	case pipeline.ActionThought, pipeline.ActionAnswer:
		text := strings.Join(strings.Fields(a.Text), " ")
		if text == "" {
			return
		}
		line = fmt.Sprintf("%s: %s", a.Stage, text)
	default:
		return
	}
	m.activity = append(m.activity, line)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

// Stages returns a copy of the displayed stage states.
func (m *ProgressModel) Stages() []StageState {
	return append([]StageState(nil), m.stages...)
}

// Done reports whether the run has returned.
func (m *ProgressModel) Done() bool { return m.done }

// View implements tea.Model.
func (m *ProgressModel) View() string {
	var b strings.Builder

	title := m.workflow
	if m.runID != "" {
		title += "  " + m.dimStyle.Render(shortID(m.runID))
	}
	b.WriteString(m.headerStyle.Render(title))
	b.WriteString("\n")

	for i, s := range m.stages {
		b.WriteString(m.stageLine(i, s))
		b.WriteString("\n")
	}

	if m.cleanup != "" {
		b.WriteString("\n")
		b.WriteString(m.labelStyle.Render("Cleanup: "))
		b.WriteString(m.cleanup)
		b.WriteString("\n")
	}

	if len(m.activity) > 0 {
		b.WriteString("\n")
		b.WriteString(m.labelStyle.Render("Activity"))
		b.WriteString("\n")
		for _, line := range m.activity {
			b.WriteString(m.dimStyle.Render("  " + truncate(line, m.width-2)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		b.WriteString(m.failStyle.Render("Failed: " + m.err.Error()))
		b.WriteString("\n")
	case m.done:
		b.WriteString(m.doneStyle.Render(fmt.Sprintf("Completed in %.2fs", m.elapsed.Seconds())))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(m.dimStyle.Render("Press q to exit"))
	} else {
		b.WriteString(m.dimStyle.Render("Press q to abort"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m *ProgressModel) stageLine(i int, s StageState) string {
	prefix := fmt.Sprintf("%d. %s", i+1, s.Name)
	switch {
	case s.Running:
		return m.spinner.View() + " " + prefix
	case s.Status == models.StageStatusDone:
		return m.doneStyle.Render("✓ "+prefix) + m.dimStyle.Render(fmt.Sprintf("  %.1fs", s.Elapsed.Seconds()))
	case s.Status == models.StageStatusSkipped:
		return m.doneStyle.Render("↷ "+prefix) + m.dimStyle.Render("  skipped")
	case s.Status == models.StageStatusFailed:
		line := m.failStyle.Render("✗ " + prefix)
		if s.Err != "" {
			line += m.dimStyle.Render("  " + s.Err)
		}
		return line
	default:
		return m.pendingStyle.Render("○ " + prefix)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, width int) string {
	if width <= 3 {
		width = 100
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
