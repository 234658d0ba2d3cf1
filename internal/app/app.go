package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/brensch/dumpstats/internal/orchestrator"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	doneStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	phaseStyle       = map[orchestrator.Phase]lipgloss.Style{
		orchestrator.PhaseSetUp:       lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		orchestrator.PhasePreProcess:  lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		orchestrator.PhaseProcess:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.PhasePostProcess: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestrator.PhaseTearDown:    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		orchestrator.PhaseDone:        doneStyle,
	}
)

// RunModel shows the progress of a single analysis run.
type RunModel struct {
	Title string
	State AppState

	spinner  spinner.Model
	progress progress.Model
	cancel   context.CancelFunc

	dumpPath   string
	dumpSource string
	dumpSize   int64
	download   DownloadMsg
	last       orchestrator.Progress
	started    time.Time

	Result   *TaskFinishedMsg
	Quitting bool

	termWidth int
}

// NewRunModel creates the view. cancel is called when the user quits.
func NewRunModel(title string, cancel context.CancelFunc) *RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &RunModel{
		Title:    title,
		State:    Resolving,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		cancel:   cancel,
		started:  time.Now(),
	}
}

func (m *RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.State == Finished || m.State == ShowError {
				m.State = Exiting
				return m, tea.Quit
			}
			// the run winds down and sends TaskFinishedMsg
			m.Quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.progress.Width = max(0, m.termWidth-4)
	case ResolvedMsg:
		m.dumpPath = msg.Path
		m.dumpSource = msg.Source
		m.dumpSize = msg.Size
	case DownloadMsg:
		m.download = msg
		if msg.Total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(msg.Written)/float64(msg.Total)))
		}
	case ProgressMsg:
		m.last = msg.Progress
		switch msg.Phase {
		case orchestrator.PhaseSetUp, orchestrator.PhasePreProcess, orchestrator.PhaseProcess:
			m.State = Processing
		default:
			m.State = Finishing
		}
		if m.dumpSize > 0 {
			cmds = append(cmds, m.progress.SetPercent(min(1, float64(msg.CompressedRead)/float64(m.dumpSize))))
		}
	case TaskFinishedMsg:
		m.Result = &msg
		m.State = Finished
		if msg.Err != nil {
			m.State = ShowError
		}
		if m.Quitting {
			m.State = Exiting
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.State != Finished && m.State != ShowError && m.State != Exiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.progress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.progress = newModel
			cmds = append(cmds, frameCmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *RunModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("--- %s ---", m.Title)))
	b.WriteString("\n\n")

	switch m.State {
	case Resolving:
		b.WriteString(fmt.Sprintf("%s Resolving dump...\n", m.spinner.View()))
		if m.download.Written > 0 {
			b.WriteString(progressBarStyle.Render(m.progress.View()))
			b.WriteString(fmt.Sprintf(" downloaded %s", humanize.Bytes(uint64(m.download.Written))))
			if m.download.Total > 0 {
				b.WriteString(" of " + humanize.Bytes(uint64(m.download.Total)))
			}
			b.WriteString("\n")
		}
	case Processing, Finishing:
		b.WriteString(m.viewProgress())
	case Finished:
		b.WriteString(m.viewProgress())
		b.WriteString(doneStyle.Render(fmt.Sprintf("Finished in %s.", m.Result.EndTime.Sub(m.Result.StartTime).Round(time.Second))))
	case ShowError:
		b.WriteString(m.viewProgress())
		b.WriteString(errorStyle.Render("Run failed:"))
		b.WriteString("\n")
		b.WriteString(wrapText(m.Result.Err.Error(), m.termWidth-4))
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	switch {
	case m.State == Finished || m.State == ShowError:
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to exit."))
	case m.Quitting:
		b.WriteString(infoStyle.Render("Stopping after the current record..."))
	case m.State != Exiting:
		b.WriteString(infoStyle.Render("Run in progress... 'q' or Ctrl+C to stop."))
	}
	return b.String()
}

func (m *RunModel) viewProgress() string {
	var b strings.Builder
	style, ok := phaseStyle[m.last.Phase]
	if !ok {
		style = infoStyle
	}
	b.WriteString(fmt.Sprintf("%s Phase: %s\n", m.spinner.View(), style.Render(string(m.last.Phase))))
	if m.dumpPath != "" {
		b.WriteString(infoStyle.Render(fmt.Sprintf("Dump: %s (%s)", m.dumpPath, m.dumpSource)))
		b.WriteString("\n")
	}
	b.WriteString(progressBarStyle.Render(m.progress.View()))
	if m.dumpSize > 0 {
		b.WriteString(fmt.Sprintf(" %s / %s", humanize.Bytes(uint64(m.last.CompressedRead)), humanize.Bytes(uint64(m.dumpSize))))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Entities: %s", humanize.Comma(m.last.Records)))
	if m.last.Rate > 0 {
		b.WriteString(fmt.Sprintf(" (%s/s)", humanize.Comma(int64(m.last.Rate))))
	}
	b.WriteString("\n")
	if len(m.last.Failed) > 0 {
		b.WriteString(errorStyle.Render("Failed processors: " + strings.Join(m.last.Failed, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
