// SPDX-License-Identifier: MIT

// Package tui is the interactive input device picker.
package tui

import (
	"fmt"
	"strings"

	"musicviz/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	stereoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FD1AE"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B"))
)

var (
	keyQuit  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp    = key.NewBinding(key.WithKeys("up", "k"))
	keyDown  = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter = key.NewBinding(key.WithKeys("enter"))
	keyBack  = key.NewBinding(key.WithKeys("esc"))
)

// SampleRates offered on the configuration screen.
var SampleRates = []float64{44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the outcome of the picker.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate float64
}

// DeviceListModel is the Bubble Tea model for choosing a capture device.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	status        string
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model that lists devices from fetch.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{
		fetch:        fetch,
		activeScreen: ListScreen,
	}
}

// Init starts the device query.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the confirmed choice, if any.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		// Start on the first device that can capture stereo.
		for i, d := range m.devices {
			if d.Stereo() {
				m.selectedIndex = i
				break
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, tea.Quit
		}

		var done bool
		if m.activeScreen == ListScreen {
			m.updateList(msg)
		} else {
			done = m.updateConfig(msg)
		}
		if done {
			return m, tea.Quit
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *DeviceListModel) updateList(msg tea.KeyMsg) {
	m.status = ""
	switch {
	case key.Matches(msg, keyUp):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, keyDown):
		if m.selectedIndex < len(m.devices)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, keyEnter):
		if len(m.devices) == 0 {
			return
		}
		device := m.devices[m.selectedIndex]
		if !device.Stereo() {
			m.status = fmt.Sprintf("%s has %d input channel(s); stereo input is required.",
				device.Name, device.MaxInputChannels)
			return
		}
		m.activeScreen = ConfigScreen
		m.sampleRateIndex = 0
		for i, rate := range SampleRates {
			if rate == device.DefaultSampleRate {
				m.sampleRateIndex = i
				break
			}
		}
	}
}

// updateConfig handles the sample rate screen and reports whether the
// selection was confirmed.
func (m *DeviceListModel) updateConfig(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, keyBack):
		m.activeScreen = ListScreen
	case key.Matches(msg, keyUp):
		if m.sampleRateIndex > 0 {
			m.sampleRateIndex--
		}
	case key.Matches(msg, keyDown):
		if m.sampleRateIndex < len(SampleRates)-1 {
			m.sampleRateIndex++
		}
	case key.Matches(msg, keyEnter):
		device := m.devices[m.selectedIndex]
		m.selection = &Selection{
			DeviceID:   device.ID,
			Name:       device.Name,
			SampleRate: SampleRates[m.sampleRateIndex],
		}
		return true
	}
	return false
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderDeviceConfig())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Sample rate • Enter: Start • Esc: Back • q: Quit")
	}
	if m.status != "" {
		help = warnStyle.Render(m.status) + "\n" + help
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		switch {
		case i == m.selectedIndex:
			deviceInfo = highlightStyle.Render("▶ " + deviceInfo)
		case device.Stereo():
			deviceInfo = stereoStyle.Render("  " + deviceInfo)
		default:
			deviceInfo = dimStyle.Render("  " + deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range SampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	return sb.String()
}

// PickDevice runs the picker full screen. ok is false when the user quit
// without choosing.
func PickDevice() (sel Selection, ok bool, err error) {
	p := tea.NewProgram(
		NewDeviceListModel(audio.HostDevices),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(DeviceListModel).Selection()
	return sel, ok, nil
}
