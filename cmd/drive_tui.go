// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwioo/me4l/pkg/rcr"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	speedStep     = 10
	defaultSpeed  = 50
	sonarBarWidth = 32
	maxLogEntries = 100
)

// Focus states
const (
	focusPorts = iota
	focusDrive
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// portItem is a discovered serial port
type portItem struct {
	name string
	path string
}

// Implement list.Item interface
func (p portItem) Title() string       { return p.name }
func (p portItem) Description() string { return p.path }
func (p portItem) FilterValue() string { return p.name }

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type driveKeyMap struct {
	Forward    key.Binding
	Backward   key.Binding
	Left       key.Binding
	Right      key.Binding
	Stop       key.Binding
	Faster     key.Binding
	Slower     key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	Focus      key.Binding
	Quit       key.Binding
}

func (k driveKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Forward, k.Backward, k.Left, k.Right, k.Stop, k.Faster, k.Slower, k.Connect, k.Disconnect, k.Focus, k.Quit}
}

func (k driveKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Forward, k.Backward, k.Left, k.Right, k.Stop},
		{k.Faster, k.Slower},
		{k.Connect, k.Disconnect, k.Focus, k.Quit},
	}
}

var driveKeys = driveKeyMap{
	Forward:    key.NewBinding(key.WithKeys("up", "w"), key.WithHelp("↑/w", "forward")),
	Backward:   key.NewBinding(key.WithKeys("down", "s"), key.WithHelp("↓/s", "back")),
	Left:       key.NewBinding(key.WithKeys("left", "a"), key.WithHelp("←/a", "left")),
	Right:      key.NewBinding(key.WithKeys("right", "d"), key.WithHelp("→/d", "right")),
	Stop:       key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "stop")),
	Faster:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
	Slower:     key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
	Connect:    key.NewBinding(key.WithKeys("c", "enter"), key.WithHelp("c", "connect")),
	Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
	Focus:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "ports/drive")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// driveModel is the Bubble Tea model for the drive TUI
type driveModel struct {
	ctx  context.Context
	ctrl driveController

	// Ports
	portList list.Model
	port     string

	// Link
	state    rcr.LinkState
	reason   string
	speed    int
	lastDir  rcr.Direction
	sonar    rcr.SonarReading
	settings *rcr.Settings
	stats    rcr.Statistics

	// UI state
	focus    int
	keys     driveKeyMap
	help     help.Model
	eventLog []logEntry
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type driveTickMsg time.Time

type driverEventMsg struct {
	event rcr.Event
}

type actionResultMsg struct {
	action string
	err    error
}

type statsMsg struct {
	stats rcr.Statistics
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDriveModel(ctx context.Context, ctrl driveController, ports map[string]string, port string) driveModel {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]list.Item, 0, len(names))
	selected := 0
	for i, name := range names {
		items = append(items, portItem{name: name, path: ports[name]})
		if name == port {
			selected = i
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	portList := list.New(items, delegate, 24, 10)
	portList.Title = "Ports"
	portList.SetShowStatusBar(false)
	portList.SetShowHelp(false)
	portList.SetFilteringEnabled(false)
	portList.Select(selected)

	focus := focusPorts
	if port != "" {
		focus = focusDrive
	}

	return driveModel{
		ctx:      ctx,
		ctrl:     ctrl,
		portList: portList,
		port:     port,
		speed:    defaultSpeed,
		focus:    focus,
		keys:     driveKeys,
		help:     help.New(),
		eventLog: make([]logEntry, 0),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m driveModel) Init() tea.Cmd {
	cmds := []tea.Cmd{driveTickCmd(), m.speedCmd(m.speed)}
	if m.port != "" {
		cmds = append(cmds, m.connectCmd(m.port))
	}
	return tea.Batch(cmds...)
}

func driveTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return driveTickMsg(t)
	})
}

func (m driveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.portList.SetHeight(max(msg.Height-16, 6))

	case driveTickMsg:
		return m, tea.Batch(m.statsCmd(), driveTickCmd())

	case statsMsg:
		m.stats = msg.stats

	case driverEventMsg:
		m.applyEvent(msg.event)

	case actionResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.action, msg.err), true)
		}
	}

	return m, nil
}

func (m driveModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusPorts {
			m.focus = focusDrive
		} else {
			m.focus = focusPorts
		}
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		item, ok := m.portList.SelectedItem().(portItem)
		if !ok {
			m.addLogEntry("No port selected", true)
			return m, nil
		}
		m.port = item.name
		m.focus = focusDrive
		m.addLogEntry(fmt.Sprintf("Connecting to %s", item.name), false)
		return m, m.connectCmd(item.name)

	case key.Matches(msg, m.keys.Disconnect):
		return m, m.disconnectCmd()
	}

	if m.focus == focusPorts {
		var cmd tea.Cmd
		m.portList, cmd = m.portList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Forward):
		return m.move(rcr.Forward)
	case key.Matches(msg, m.keys.Backward):
		return m.move(rcr.Backward)
	case key.Matches(msg, m.keys.Left):
		return m.move(rcr.TurnLeft)
	case key.Matches(msg, m.keys.Right):
		return m.move(rcr.TurnRight)
	case key.Matches(msg, m.keys.Stop):
		return m.move(rcr.Stop)
	case key.Matches(msg, m.keys.Faster):
		return m.changeSpeed(speedStep)
	case key.Matches(msg, m.keys.Slower):
		return m.changeSpeed(-speedStep)
	}
	return m, nil
}

func (m driveModel) move(dir rcr.Direction) (tea.Model, tea.Cmd) {
	m.lastDir = dir
	ctx, ctrl := m.ctx, m.ctrl
	return m, func() tea.Msg {
		return actionResultMsg{action: "move " + dir.String(), err: ctrl.Move(ctx, dir)}
	}
}

func (m driveModel) changeSpeed(delta int) (tea.Model, tea.Cmd) {
	m.speed = min(max(m.speed+delta, 0), 100)
	return m, m.speedCmd(m.speed)
}

func (m driveModel) speedCmd(percent int) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionResultMsg{action: "speed", err: ctrl.SetSpeed(ctx, percent)}
	}
}

func (m driveModel) connectCmd(port string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionResultMsg{action: "connect " + port, err: ctrl.Connect(ctx, port)}
	}
}

func (m driveModel) disconnectCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionResultMsg{action: "disconnect", err: ctrl.Disconnect(ctx)}
	}
}

func (m driveModel) statsCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		s, err := ctrl.Stats(ctx)
		if err != nil {
			return nil
		}
		return statsMsg{stats: s}
	}
}

//////////////////////////////////////////////////////////////
// Event Processing
//////////////////////////////////////////////////////////////

func (m *driveModel) applyEvent(ev rcr.Event) {
	switch e := ev.(type) {
	case rcr.StateEvent:
		m.state = e.State
		m.reason = e.Reason
		if e.State == rcr.Connected {
			m.addLogEntry("Link up", false)
		} else {
			m.lastDir = rcr.Idle
			m.addLogEntry(fmt.Sprintf("Link down: %s", e.Reason), e.Reason == "no communication")
		}
	case rcr.SonarEvent:
		m.sonar = e.Reading
	case rcr.SettingsEvent:
		s := e.Settings
		m.settings = &s
		m.addLogEntry(fmt.Sprintf("Dongle: channel %d, speed %d, power %d", s.Channel, s.Speed, s.Power), false)
	case rcr.StatusEvent:
		if m.settings != nil {
			m.settings.SetValue(e.Parameter, e.Value)
		}
		m.addLogEntry(fmt.Sprintf("Set %s=%d", e.Parameter, e.Value), false)
	case rcr.ErrorEvent:
		m.addLogEntry(e.Err.Error(), true)
	}
}

func (m *driveModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m driveModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	port := m.port
	if port == "" {
		port = "no port"
	}
	s.WriteString(titleStyle.Render("ME4L DRIVE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", port, m.stateText())))
	s.WriteString("\n\n")

	leftWidth := 26
	rightWidth := max(m.width-leftWidth-6, 30)

	listStyle := boxStyle.Width(leftWidth)
	driveStyle := boxStyle.Width(rightWidth)
	if m.focus == focusPorts {
		listStyle = focusedBoxStyle.Width(leftWidth)
	} else {
		driveStyle = focusedBoxStyle.Width(rightWidth)
	}

	portPanel := listStyle.Render(m.portList.View())
	drivePanel := driveStyle.Render(m.renderDrivePanel())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, portPanel, " ", drivePanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m driveModel) stateText() string {
	if m.state == rcr.Connected {
		return valueStyle.Render("CONNECTED")
	}
	if m.reason == "no communication" {
		return errorStyle.Render("NO COMMUNICATION")
	}
	return warningStyle.Render("DISCONNECTED")
}

func (m driveModel) renderDrivePanel() string {
	var s strings.Builder

	s.WriteString(fmt.Sprintf("%s %s   %s %s\n\n",
		labelStyle.Render("Speed:"), valueStyle.Render(fmt.Sprintf("%3d%%", m.speed)),
		labelStyle.Render("Last:"), valueStyle.Render(m.lastDir.String())))

	s.WriteString(labelStyle.Render("SONAR"))
	s.WriteString("\n")
	proximity := m.sonar.Proximity()
	if m.state != rcr.Connected {
		proximity = [rcr.SonarCount]uint8{}
	}
	for i, name := range []string{"left  ", "center", "right "} {
		s.WriteString(fmt.Sprintf("%s %s %3d\n", name, sonarBar(proximity[i], sonarBarWidth), m.sonar[i]))
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("DONGLE"))
	s.WriteString("\n")
	if m.settings == nil {
		s.WriteString(headerStyle.Render("(not read yet)"))
	} else {
		st := m.settings
		s.WriteString(fmt.Sprintf("channel %d  speed %d  power %d  sens %d  buffer %d",
			st.Channel, st.Speed, st.Power, st.Sensitivity, st.BufferSize))
	}
	return s.String()
}

// sonarBar renders v (0-255) as a horizontal bar of width cells.
func sonarBar(v uint8, width int) string {
	filled := int(v) * width / 255
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m driveModel) renderStatisticsBar() string {
	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Polls:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Polls)),
		labelStyle.Render("Reports:"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.stats.SuccessPercent())),
		labelStyle.Render("No reply:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.NoReply)),
		labelStyle.Render("Drops:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Disconnects)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.PollRate)),
	)
	return boxStyle.Width(max(m.width-4, 40)).Render(content)
}

func (m driveModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(len(m.eventLog), 6)
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(max(m.width-4, 40)).Render(s.String())
}
