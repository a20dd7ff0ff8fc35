// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/pitch"
)

const (
	meterWidth    = 41 // Odd, so the centre cell is 0 cents.
	staleAfter    = 500 * time.Millisecond
	refreshPeriod = 100 * time.Millisecond
	inTuneCents   = 5
)

var (
	noteStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#25A065"))

	inTuneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	offTuneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true)
)

// EventChannel is an analysis.Sink that forwards events to the monitor. A full
// channel drops the event so the dispatcher never blocks on the UI.
type EventChannel chan analysis.Event

// NewEventChannel creates a sink buffering up to size events.
func NewEventChannel(size int) EventChannel {
	return make(EventChannel, size)
}

func (c EventChannel) Emit(ev analysis.Event) {
	select {
	case c <- ev:
	default:
	}
}

// MonitorOptions wires the monitor to a running engine.
type MonitorOptions struct {
	Events     EventChannel
	Stats      func() audio.Stats // Optional.
	Estimators []string           // Cycled with 'e'.
	Estimator  string             // Initially selected estimator.
	Switch     func(name string) error
	Device     string
	SampleRate int
	WindowSize int
}

type eventMsg analysis.Event

type tickMsg time.Time

type closedMsg struct{}

// MonitorModel is the live pitch readout.
type MonitorModel struct {
	opts      MonitorOptions
	last      analysis.Event
	note      pitch.NoteInfo
	hasNote   bool
	received  uint64
	now       time.Time
	stats     audio.Stats
	estimator string
	err       error
	closed    bool
}

// NewMonitorModel creates the monitor.
func NewMonitorModel(opts MonitorOptions) MonitorModel {
	return MonitorModel{
		opts:      opts,
		estimator: opts.Estimator,
		now:       time.Now(),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.opts.Events), tick())
}

func waitForEvent(events EventChannel) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshPeriod, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.last = analysis.Event(msg)
		m.note, m.hasNote = pitch.Note(float64(msg.Frequency))
		m.received++
		return m, waitForEvent(m.opts.Events)

	case closedMsg:
		m.closed = true

	case tickMsg:
		m.now = time.Time(msg)
		if m.opts.Stats != nil {
			m.stats = m.opts.Stats()
		}
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyToggle):
			m.cycleEstimator()
		}
	}
	return m, nil
}

// cycleEstimator switches to the next estimator in the list.
func (m *MonitorModel) cycleEstimator() {
	names := m.opts.Estimators
	if m.opts.Switch == nil || len(names) < 2 {
		return
	}
	next := names[(slices.Index(names, m.estimator)+1)%len(names)]
	if err := m.opts.Switch(next); err != nil {
		m.err = err
		return
	}
	m.estimator = next
	m.err = nil
}

// stale reports whether the last pitch is too old to show.
func (m MonitorModel) stale() bool {
	return m.received == 0 || m.now.Sub(m.last.Time) > staleAfter
}

func (m MonitorModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Pitch Monitor"))
	fmt.Fprintf(&sb, "  %s • %d Hz • window %d • %s\n\n",
		m.opts.Device, m.opts.SampleRate, m.opts.WindowSize, m.estimator)

	if m.stale() || !m.hasNote {
		sb.WriteString(noteStyle.Render(" -- "))
		sb.WriteString("\n\n")
		sb.WriteString(dimStyle.Render("listening..."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(noteStyle.Render(m.note.Label()))
		sb.WriteString("\n\n")
		style := offTuneStyle
		if math.Abs(m.note.Cents) <= inTuneCents {
			style = inTuneStyle
		}
		fmt.Fprintf(&sb, "%s  %s\n", style.Render(fmt.Sprintf("%8.2f Hz", m.last.Frequency)),
			style.Render(fmt.Sprintf("%+4.0f cents", m.note.Cents)))
		sb.WriteString(centsMeter(m.note.Cents))
		sb.WriteString("\n")
	}

	st := m.stats
	fmt.Fprintf(&sb, "\n%s\n", dimStyle.Render(fmt.Sprintf(
		"windows %d • estimates %d • no pitch %d • gated %d • dropped %d • rejected %d",
		st.Windows, st.Estimates, st.Suppressed, st.Gated, st.Dropped, st.CallbackErrors)))

	if m.err != nil {
		fmt.Fprintf(&sb, "Error: %v\n", m.err)
	}
	if m.closed {
		sb.WriteString("Engine stopped.\n")
	}

	help := "q: Quit"
	if m.opts.Switch != nil && len(m.opts.Estimators) > 1 {
		help = "e: Switch estimator • " + help
	}
	sb.WriteString("\n" + infoStyle.Render(help))
	return sb.String()
}

// centsMeter draws a needle at cents within ±50.
func centsMeter(cents float64) string {
	half := meterWidth / 2
	pos := half + int(math.Round(cents/50*float64(half)))
	pos = max(0, min(pos, meterWidth-1))

	cells := []rune(strings.Repeat("─", meterWidth))
	cells[half] = '┼'
	cells[pos] = '●'
	return "♭ " + string(cells) + " ♯"
}

// StartMonitorUI runs the pitch monitor until the user quits or ctx is done.
func StartMonitorUI(ctx context.Context, opts MonitorOptions) error {
	p := tea.NewProgram(NewMonitorModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
