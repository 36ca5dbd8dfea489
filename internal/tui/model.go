// Package tui renders the optional live progress view and the end-of-run
// summary table.
package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/schaermu/imgshrink/internal/shrink"
)

// Model is the bubbletea model of the progress view
type Model struct {
	updates     <-chan shrink.ProgressUpdate
	onInterrupt func()
	started     time.Time
	width       int
	total       int
	processed   int
	skipped     int
	failed      int
	bytesSaved  int64
	current     string
	quitting    bool
}

type doneMsg struct{}

type updateMsg shrink.ProgressUpdate

// NewModel creates a progress view fed by updates. onInterrupt is called
// when the user presses ctrl+c, since the terminal is in raw mode and no
// SIGINT is delivered.
func NewModel(updates <-chan shrink.ProgressUpdate, onInterrupt func()) Model {
	return Model{updates: updates, onInterrupt: onInterrupt, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.processed += msg.ProcessedDelta
		m.skipped += msg.SkippedDelta
		m.failed += msg.FailedDelta
		m.bytesSaved += msg.BytesSavedDelta
		if msg.File != "" {
			m.current = msg.File
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && m.onInterrupt != nil {
			m.onInterrupt()
		}
		// Keep draining updates until the engine closes the channel
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

// Done returns the number of files handled so far
func (m Model) Done() int {
	return m.processed + m.skipped + m.failed
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.Done()) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	lines := []string{
		titleStyle.Render("imgshrink"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.Done(), m.total)) +
			dimStyle.Render(fmt.Sprintf("  compressed:%d skipped:%d failed:%d", m.processed, m.skipped, m.failed)),
		labelStyle.Render("Saved: " + FormatBytes(m.bytesSaved)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", time.Since(m.started).Round(time.Millisecond))),
		barStyle.Render(renderBar(barWidth, ratio)),
	}
	if m.current != "" {
		lines = append(lines, dimStyle.Render(filepath.Base(m.current)))
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan shrink.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
