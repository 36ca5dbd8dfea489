package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/schaermu/imgshrink/internal/shrink"
)

type SummaryRow struct {
	Label string
	Value string
	Warn  bool
}

// SummaryRows lists the counters of a run, showing only what applies
func SummaryRows(s *shrink.Summary) []SummaryRow {
	rows := []SummaryRow{
		{Label: "Directories", Value: strconv.Itoa(s.Directories)},
	}

	compressed := "Compressed"
	if s.DryRun {
		compressed = "Would compress"
	}
	rows = append(rows,
		SummaryRow{Label: compressed, Value: strconv.Itoa(s.Processed)},
		SummaryRow{Label: "Unchanged", Value: strconv.Itoa(s.Skipped)},
	)
	if s.Logged > 0 {
		rows = append(rows, SummaryRow{Label: "Logged only", Value: strconv.Itoa(s.Logged)})
	}
	rows = append(rows, SummaryRow{Label: "Failed", Value: strconv.Itoa(s.Failed), Warn: s.Failed > 0})
	if s.DirFailures > 0 {
		rows = append(rows, SummaryRow{Label: "Failed directories", Value: strconv.Itoa(s.DirFailures), Warn: true})
	}
	if !s.DryRun {
		rows = append(rows, SummaryRow{Label: "Space saved", Value: FormatBytes(s.BytesSaved())})
	}
	return rows
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		style := valueStyle
		if row.Warn {
			style = warnStyle
		}
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		lines = append(lines, fmt.Sprintf("%s | %s", labelStyle.Render(label), style.Render(value)))
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// FormatBytes renders n with a binary unit suffix
func FormatBytes(n int64) string {
	const unit = 1024
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	if n < unit {
		return fmt.Sprintf("%s%d B", sign, n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %ciB", sign, float64(n)/float64(div), "KMGTPE"[exp])
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
)
