package output

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/penwyp/tokencat/aggregate"
)

var watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))

type reportMsg struct {
	report *aggregate.Report
}

// WatchModel is the bubbletea model for the live monitor: the latest
// report plus a spinner that shows the loop is alive between refreshes.
type WatchModel struct {
	spinner    spinner.Model
	report     *aggregate.Report
	lastUpdate time.Time
}

// NewWatchModel creates the watch TUI model.
func NewWatchModel() WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	return WatchModel{spinner: s}
}

func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case reportMsg:
		m.report = msg.report
		m.lastUpdate = time.Now()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	header := watchTitleStyle.Render("tokencat watch")
	status := m.spinner.View() + " waiting for first refresh"
	if m.report != nil {
		status = fmt.Sprintf("%s updated %s", m.spinner.View(), m.lastUpdate.Format("15:04:05"))
	}

	view := header + "  " + status + "\n\n"
	if m.report != nil {
		view += FormatReport(m.report)
	}
	view += "\nPress q to quit.\n"
	return view
}

// TUIRenderer delivers refreshed reports into a running bubbletea program.
type TUIRenderer struct {
	program *tea.Program
}

// NewTUIRenderer wraps a program so the monitor loop can feed it.
func NewTUIRenderer(program *tea.Program) *TUIRenderer {
	return &TUIRenderer{program: program}
}

func (r *TUIRenderer) Render(report *aggregate.Report) error {
	r.program.Send(reportMsg{report: report})
	return nil
}

// PlainRenderer prints each refreshed report with a timestamp. It is used
// when stdout is not a terminal or full output is requested.
type PlainRenderer struct {
	w io.Writer
}

// NewPlainRenderer creates a plain watch renderer writing to w.
func NewPlainRenderer(w io.Writer) *PlainRenderer {
	return &PlainRenderer{w: w}
}

func (r *PlainRenderer) Render(report *aggregate.Report) error {
	if _, err := fmt.Fprintf(r.w, "=== %s ===\n", time.Now().Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	_, err := io.WriteString(r.w, FormatReport(report))
	return err
}
