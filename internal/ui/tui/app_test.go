package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiberscan/internal/models"
	"fiberscan/pkg/detect"
	"fiberscan/pkg/scan"
)

func fixture(t *testing.T) *scan.ScanResult {
	t.Helper()
	vol := models.NewVolume(3, 4, 4)
	vol.Set(0, 0, 0, true)
	vol.Set(2, 1, 1, true)
	vol.Set(2, 3, 3, true)
	result, err := scan.NewScanner(&detect.Connectivity{}, scan.WithWorkers(1)).
		Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)
	return result
}

func press(m model, key string) model {
	var msg tea.KeyMsg
	switch key {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "home":
		msg = tea.KeyMsg{Type: tea.KeyHome}
	case "end":
		msg = tea.KeyMsg{Type: tea.KeyEnd}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func TestCursorStaysInRange(t *testing.T) {
	m := newModel(fixture(t))

	m = press(m, "left")
	assert.Equal(t, 0, m.cursor)

	m = press(m, "right")
	m = press(m, "right")
	m = press(m, "right")
	assert.Equal(t, 2, m.cursor)

	m = press(m, "home")
	assert.Equal(t, 0, m.cursor)
	m = press(m, "end")
	assert.Equal(t, 2, m.cursor)
}

func TestQuitKey(t *testing.T) {
	m := newModel(fixture(t))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestViewShowsObjectCount(t *testing.T) {
	m := newModel(fixture(t))
	assert.Contains(t, m.View(), "objects: 1")

	m = press(m, "right")
	assert.Contains(t, m.View(), "objects: 0")

	m = press(m, "end")
	view := m.View()
	assert.Contains(t, view, "objects: 2")
	assert.True(t, strings.Contains(view, "#2"))
}

func TestRunRejectsEmptyResult(t *testing.T) {
	assert.Error(t, Run(nil))
}

func TestViewUsesThemeSections(t *testing.T) {
	m := newModel(fixture(t))
	view := m.View()

	assert.Contains(t, view, "q quit")
	assert.Contains(t, view, "axis xy")
	assert.Contains(t, view, "objects: 1")
	// summary box border
	assert.Contains(t, view, "┌")
}
