// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pitchtrack/internal/audio"
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

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyLeft   = key.NewBinding(key.WithKeys("left", "h"))
	keyRight  = key.NewBinding(key.WithKeys("right", "l"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyBack   = key.NewBinding(key.WithKeys("esc"))
	keyToggle = key.NewBinding(key.WithKeys("e"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Sample rates and window sizes offered on the configuration screen.
var (
	sampleRates = []float64{22050, 44100, 48000, 88200, 96000}
	windowSizes = []int{512, 1024, 2048, 4096}
)

// configField is the row being edited on the configuration screen.
type configField int

const (
	fieldSampleRate configField = iota
	fieldWindowSize
	fieldCount
)

// Selection is the device setup confirmed in the browser.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
	WindowSize int
}

// Flags renders the selection as command line flags.
func (s Selection) Flags() string {
	return fmt.Sprintf("--device %d --sample-rate %.0f --window-size %d", s.DeviceID, s.SampleRate, s.WindowSize)
}

// DeviceListModel represents the Bubble Tea model for listing audio devices
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	inputsOnly    bool

	// Configuration options
	field           configField
	sampleRateIndex int
	windowSizeIndex int
	selection       *Selection
}

// NewDeviceListModel creates a device browser that loads devices with fetch.
// A nil fetch uses audio.GetDevices.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	if fetch == nil {
		fetch = audio.GetDevices
	}
	return DeviceListModel{
		fetch:           fetch,
		activeScreen:    ListScreen,
		windowSizeIndex: 1,
	}
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// Init initializes the Bubble Tea model
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

// visible returns the devices shown in the list.
func (m DeviceListModel) visible() []audio.Device {
	if !m.inputsOnly {
		return m.devices
	}
	inputs := make([]audio.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if d.IsInput() {
			inputs = append(inputs, d)
		}
	}
	return inputs
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
		for i, d := range m.devices {
			if d.DefaultInput {
				m.selectedIndex = i
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}

		if m.activeScreen == ListScreen {
			devices := m.visible()
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}

			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(devices)-1 {
					m.selectedIndex++
				}

			case key.Matches(msg, keyToggle):
				m.inputsOnly = !m.inputsOnly
				m.selectedIndex = 0

			case key.Matches(msg, keyEnter):
				if len(devices) > 0 && devices[m.selectedIndex].IsInput() {
					m.activeScreen = ConfigScreen
					m.field = fieldSampleRate
					m.sampleRateIndex = nearestRate(devices[m.selectedIndex].DefaultSampleRate)
				}
			}
		} else {
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen

			case key.Matches(msg, keyUp):
				m.field = (m.field + fieldCount - 1) % fieldCount

			case key.Matches(msg, keyDown):
				m.field = (m.field + 1) % fieldCount

			case key.Matches(msg, keyLeft):
				m.step(-1)

			case key.Matches(msg, keyRight):
				m.step(1)

			case key.Matches(msg, keyEnter):
				device := m.visible()[m.selectedIndex]
				m.selection = &Selection{
					DeviceID:   device.ID,
					DeviceName: device.Name,
					SampleRate: sampleRates[m.sampleRateIndex],
					WindowSize: windowSizes[m.windowSizeIndex],
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// step moves the value of the active field by delta, clamped to its options.
func (m *DeviceListModel) step(delta int) {
	switch m.field {
	case fieldSampleRate:
		m.sampleRateIndex = clampIndex(m.sampleRateIndex+delta, len(sampleRates))
	case fieldWindowSize:
		m.windowSizeIndex = clampIndex(m.windowSizeIndex+delta, len(windowSizes))
	}
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

// Selection returns the confirmed setup, or nil when the user quit.
func (m DeviceListModel) Selection() *Selection {
	return m.selection
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string

	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • e: Inputs only • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Field • ←/→: Change Value • Enter: Use • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	var sb strings.Builder

	devices := m.visible()
	if len(devices) == 0 {
		return "No audio devices found."
	}

	for i, device := range devices {
		marker := ""
		if device.DefaultInput {
			marker = " *default*"
		}
		deviceInfo := fmt.Sprintf("[%d] %s (%s)%s\n", device.ID, device.Name, device.Type(), marker)
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		switch {
		case i == m.selectedIndex:
			deviceInfo = highlightStyle.Render(deviceInfo)
		case !device.IsInput():
			deviceInfo = dimStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.visible()[m.selectedIndex]
	rate := sampleRates[m.sampleRateIndex]
	size := windowSizes[m.windowSizeIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)

	rows := []string{
		fmt.Sprintf("Sample Rate: ◀ %.0f Hz ▶", rate),
		fmt.Sprintf("Window Size: ◀ %d samples ▶", size),
	}
	for i, row := range rows {
		line := "  " + row
		if configField(i) == m.field {
			line = highlightStyle.Render("▶ " + row)
		}
		sb.WriteString(line + "\n")
	}

	// Lowest detectable pitch is about two periods per window.
	fmt.Fprintf(&sb, "\nWindow length: %.1f ms, lowest pitch ≈ %.0f Hz\n",
		float64(size)/rate*1000, 2*rate/float64(size))

	return sb.String()
}

func nearestRate(rate float64) int {
	best := 0
	for i, r := range sampleRates {
		if abs(r-rate) < abs(sampleRates[best]-rate) {
			best = i
		}
	}
	return best
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// StartDeviceListUI launches the device browser and returns the confirmed
// selection, or nil when the user quit without choosing.
func StartDeviceListUI() (*Selection, error) {
	p := tea.NewProgram(
		NewDeviceListModel(nil),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(DeviceListModel).Selection(), nil
}
