// SPDX-License-Identifier: MIT
/*
Package tui is the terminal front end: a live spectrogram drawn with half
block characters, a status line and key bindings for the display controls,
plus an interactive device picker.
*/
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectro/internal/display"
	"spectro/internal/render"
)

// chromeLines are the terminal rows below the spectrogram.
const chromeLines = 2

const (
	paramStep = 0.05
	maxZoom   = 16
)

var (
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	pitchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

// Controller is the part of display.Controls the view drives.
type Controller interface {
	StartMicrophone() error
	Stop() error
	Clear() error
	Resize(w, h int) error
	UpdateParameters(render.ParameterUpdate) error
}

var _ Controller = (*display.Controls)(nil)

// Meter reports the peak input level in [0, 1].
type Meter interface {
	Level() float32
}

type tickMsg time.Time

// Model is the live spectrogram view.
type Model struct {
	ctl      Controller
	surface  *Surface
	params   render.Parameters
	gradient int
	interval time.Duration
	meter    Meter

	frame  string
	level  float32
	status display.Status
	width  int
	height int
	err    error

	keys keyMap
	help help.Model
}

// NewModel returns a view polling surface frameRate times a second.
// params are the parameters the display started with.
func NewModel(ctl Controller, surface *Surface, params render.Parameters, frameRate int) Model {
	if frameRate <= 0 {
		frameRate = 30
	}
	names := render.PresetNames()
	gradient := 0
	for i, name := range names {
		if stops, _ := render.Preset(name); slices.Equal(stops, params.Gradient) {
			gradient = i
			break
		}
	}
	return Model{
		ctl:      ctl,
		surface:  surface,
		params:   params,
		gradient: gradient,
		interval: time.Second / time.Duration(frameRate),
		keys:     defaultKeys(),
		help:     help.New(),
	}
}

// WithMeter shows meter's level while the microphone is capturing.
func (m Model) WithMeter(meter Meter) Model {
	m.meter = meter
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles ticks, resizes and keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.frame, m.status = m.surface.Snapshot()
		if m.meter != nil {
			m.level = m.meter.Level()
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		rows := max(msg.Height-chromeLines, 1)
		m.err = m.ctl.Resize(msg.Width, rows*2)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		if m.active() {
			err = m.ctl.Stop()
		} else {
			err = m.ctl.StartMicrophone()
		}
	case key.Matches(msg, m.keys.Microphone):
		err = m.ctl.StartMicrophone()
	case key.Matches(msg, m.keys.Clear):
		err = m.ctl.Clear()
	case key.Matches(msg, m.keys.Sensitivity):
		err = m.update(render.ParameterUpdate{Sensitivity: render.Ptr(step(m.params.Sensitivity, paramStep))})
	case key.Matches(msg, m.keys.Dimmer):
		err = m.update(render.ParameterUpdate{Sensitivity: render.Ptr(step(m.params.Sensitivity, -paramStep))})
	case key.Matches(msg, m.keys.Contrast):
		err = m.update(render.ParameterUpdate{Contrast: render.Ptr(step(m.params.Contrast, paramStep))})
	case key.Matches(msg, m.keys.Flatter):
		err = m.update(render.ParameterUpdate{Contrast: render.Ptr(step(m.params.Contrast, -paramStep))})
	case key.Matches(msg, m.keys.ZoomIn):
		err = m.update(render.ParameterUpdate{Zoom: render.Ptr(min(m.params.Zoom+1, maxZoom))})
	case key.Matches(msg, m.keys.ZoomOut):
		err = m.update(render.ParameterUpdate{Zoom: render.Ptr(max(m.params.Zoom-1, 1))})
	case key.Matches(msg, m.keys.Gradient):
		names := render.PresetNames()
		m.gradient = (m.gradient + 1) % len(names)
		stops, _ := render.Preset(names[m.gradient])
		err = m.update(render.ParameterUpdate{Gradient: stops})
	case key.Matches(msg, m.keys.Scale):
		scale := render.Log
		if m.params.Scale == render.Log {
			scale = render.Linear
		}
		err = m.update(render.ParameterUpdate{Scale: &scale})
	default:
		return m, nil
	}
	m.err = err
	return m, nil
}

// update sends u and mirrors it locally so the next step starts from it.
func (m *Model) update(u render.ParameterUpdate) error {
	if u.Sensitivity != nil {
		m.params.Sensitivity = *u.Sensitivity
	}
	if u.Contrast != nil {
		m.params.Contrast = *u.Contrast
	}
	if u.Zoom != nil {
		m.params.Zoom = *u.Zoom
	}
	if u.Scale != nil {
		m.params.Scale = *u.Scale
	}
	if u.Gradient != nil {
		m.params.Gradient = u.Gradient
	}
	return m.ctl.UpdateParameters(u)
}

// step moves v by d within [0, 1], rounded to the step grid.
func step(v, d float64) float64 {
	v = math.Round((v+d)/paramStep) * paramStep
	return math.Max(0, math.Min(1, v))
}

func (m Model) active() bool {
	switch m.status.State {
	case display.Stopped, display.Paused:
		return false
	}
	return true
}

// View draws the spectrogram, the status line and the key help.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.frame)
	sb.WriteByte('\n')
	sb.WriteString(m.statusLine(time.Now()))
	sb.WriteByte('\n')
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m Model) statusLine(now time.Time) string {
	s := m.status
	parts := []string{
		titleStyle.Render("spectro"),
		stateStyle.Render(s.State.String()),
	}
	if s.Source != "" {
		parts = append(parts, s.Source)
	}
	if !s.Started.IsZero() && s.State != display.Stopped && s.State != display.Paused {
		elapsed := now.Sub(s.Started)
		if s.Duration > 0 {
			elapsed = min(elapsed, s.Duration)
			parts = append(parts, clock(elapsed)+" / "+clock(s.Duration))
		} else {
			parts = append(parts, clock(elapsed))
		}
	}
	if m.meter != nil && s.State.Capturing() {
		parts = append(parts, "in "+levelBar(m.level))
	}
	pitch := s.Pitch
	if pitch == "" {
		pitch = "—"
	}
	parts = append(parts, "pitch "+pitchStyle.Render(pitch))
	parts = append(parts, fmt.Sprintf("%s %s ×%.0f", m.params.Scale, render.PresetNames()[m.gradient], m.params.Zoom))
	if m.err != nil {
		parts = append(parts, errStyle.Render(m.err.Error()))
	}
	return strings.Join(parts, "  ")
}

// levelBar renders level as eight cells and its value in dBFS.
func levelBar(level float32) string {
	const cells = 8
	v := math.Max(0, math.Min(1, float64(level)))
	n := int(math.Round(v * cells))
	db := "-inf"
	if v > 0 {
		db = fmt.Sprintf("%.0f", 20*math.Log10(v))
	}
	return strings.Repeat("▮", n) + strings.Repeat("▯", cells-n) + " " + db + " dB"
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// Run shows m full screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
