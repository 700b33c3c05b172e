// Package tui is an interactive slice slider over a finished scan.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fiberscan/pkg/scan"
	"fiberscan/pkg/visualization"
)

// maxRecordLines caps the per-slice record listing
const maxRecordLines = 8

type model struct {
	theme  Theme
	result *scan.ScanResult

	// cursor is the slice on screen; it is owned by the model, not the result
	cursor int

	width  int
	height int
}

// Run opens the slider on result and blocks until the user quits
func Run(result *scan.ScanResult) error {
	if result == nil || result.NumSlices() == 0 {
		return fmt.Errorf("nothing to preview")
	}
	p := tea.NewProgram(newModel(result), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(result *scan.ScanResult) model {
	return model{
		theme:  DefaultTheme(),
		result: result,
		width:  80,
		height: 24,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		last := m.result.NumSlices() - 1
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "right", "l", "n":
			if m.cursor < last {
				m.cursor++
			}
		case "left", "h", "p":
			if m.cursor > 0 {
				m.cursor--
			}
		case "pgdown":
			m.cursor = min(m.cursor+10, last)
		case "pgup":
			m.cursor = max(m.cursor-10, 0)
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = last
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("fiberscan  %s  slice %d/%d", m.result.Strategy, m.cursor, m.result.NumSlices()-1)
	b.WriteString(m.theme.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(m.theme.Subtitle.Render(fmt.Sprintf("axis %s, spacing %.3g", m.result.Axis, m.result.Spacing[0])))
	b.WriteString("\n\n")

	grid := m.renderSlice()
	summary := m.renderSummary()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, grid, "  ", m.theme.Summary.Render(summary)))
	b.WriteString("\n\n")
	b.WriteString(m.theme.Help.Render("←/→ slice • pgup/pgdn ±10 • home/end • q quit"))
	return b.String()
}

// renderSlice draws the labelled slice as coloured cells, subsampled to fit
// the terminal
func (m model) renderSlice() string {
	labels, err := m.result.LabelSlice(m.cursor)
	if err != nil {
		return m.theme.Warn.Render(err.Error())
	}
	if labels.Rows == 0 || labels.Cols == 0 {
		return ""
	}

	// each cell is two terminal columns wide
	maxCols := max((m.width-30)/2, 1)
	maxRows := max(m.height-8, 1)
	step := max(ceilDiv(labels.Cols, maxCols), ceilDiv(labels.Rows, maxRows), 1)

	styles := map[int32]lipgloss.Style{}
	var b strings.Builder
	for r := 0; r < labels.Rows; r += step {
		for c := 0; c < labels.Cols; c += step {
			l := labels.At(r, c)
			if l == 0 {
				b.WriteString("  ")
				continue
			}
			st, ok := styles[l]
			if !ok {
				col := visualization.LabelColor(l)
				st = lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", col.R, col.G, col.B)))
				styles[l] = st
			}
			b.WriteString(st.Render("██"))
		}
		if r+step < labels.Rows {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m model) renderSummary() string {
	recs := m.result.RecordsForSlice(m.cursor)
	count := m.result.ObjectCount(m.cursor)

	var b strings.Builder
	fmt.Fprintf(&b, "objects: %d\n", count)
	for _, f := range m.result.Failures {
		if f.Slice == m.cursor {
			b.WriteString(m.theme.Warn.Render("detection failed: " + f.Err.Error()))
			b.WriteString("\n")
		}
	}
	if count == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	for i, rec := range recs {
		if i == maxRecordLines {
			fmt.Fprintf(&b, "… %d more", len(recs)-maxRecordLines)
			break
		}
		fmt.Fprintf(&b, "#%-3d area %-5d solidity %.2f", rec.Label, rec.Area, rec.Solidity)
		if rec.Degenerate {
			b.WriteString(" (degenerate)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
