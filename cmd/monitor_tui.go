// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type monitorTickMsg time.Time
type resultMsg report
type connectionEndedMsg struct {
	err error
}

// Shared styles for the monitor and console dashboards
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
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
)

// monitorModel is the monitor dashboard
type monitorModel struct {
	connInfo    string
	payloadName string
	frameSize   int
	showAll     bool

	stats         *safetransfer.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int

	lastValue string
	lastFrame []byte
	lastSeen  time.Time

	ended    bool
	width    int
	height   int
	quitting bool
}

func initialMonitorModel(connInfo, payloadName string, frameSize int, showAll bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		payloadName:   payloadName,
		frameSize:     frameSize,
		showAll:       showAll,
		stats:         safetransfer.NewStatistics(),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case resultMsg:
		m.applyResult(report(msg))

	case connectionEndedMsg:
		m.ended = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection closed", false)
		}
	}

	return m, nil
}

func (m *monitorModel) applyResult(r report) {
	m.stats.RecordReceive(r.Status, r.Type, r.Reason)

	switch r.Status {
	case safetransfer.StatusDelivered:
		m.lastValue = r.Value
		m.lastFrame = r.Frame
		m.lastSeen = time.Now()
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s value=%s", r.Type, r.Value), false)
		}
	case safetransfer.StatusDropped:
		m.addLogEntry(fmt.Sprintf("DROPPED %s: %v", r.Type, r.Reason), false)
	case safetransfer.StatusRejected:
		m.addLogEntry(fmt.Sprintf("REJECTED %s: %v [%s]", r.Type, r.Reason, safetransfer.FormatHex(r.Frame)), true)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SAFEWIRE - MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Payload: %s (%d bytes) | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, m.payloadName, m.frameSize, mode)))
	s.WriteString("\n\n")

	if m.ended {
		s.WriteString(errorStyle.Render("Connection ended"))
		s.WriteString("\n\n")
	}

	s.WriteString(boxStyle.Render(renderStats(m.stats)))
	s.WriteString("\n\n")

	if !m.lastSeen.IsZero() {
		s.WriteString(statsLabelStyle.Render("Latest Value:"))
		s.WriteString("\n")
		latest := fmt.Sprintf("%s %s   %s %s\n%s %s",
			statsLabelStyle.Render("Value:"), statsValueStyle.Render(m.lastValue),
			statsLabelStyle.Render("Age:"), statsValueStyle.Render(formatAge(time.Since(m.lastSeen))),
			statsLabelStyle.Render("Frame:"), headerStyle.Render(safetransfer.FormatHex(m.lastFrame)),
		)
		s.WriteString(boxStyle.Render(latest))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.eventLog, m.height-15)))

	return s.String()
}

// renderStats formats the statistics box contents
func renderStats(stats *safetransfer.Statistics) string {
	stats.CalculateRates()

	var deliveredPercent, errorPercent float64
	if stats.TotalFrames > 0 {
		deliveredPercent = float64(stats.DeliveredFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.RejectedFrames) * 100.0 / float64(stats.TotalFrames)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Delivered:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.DeliveredFrames, deliveredPercent)),
		statsLabelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.RejectedFrames, errorPercent)),
	))

	if stats.RejectedFrames > 0 {
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", stats.CRCErrors)),
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", stats.MalformedFrames)),
			statsLabelStyle.Render("Unknown type:"), errorStyle.Render(fmt.Sprintf("%d", stats.UnknownTypes)),
		))
	}

	if stats.DroppedFrames > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Dropped:"), warningStyle.Render(fmt.Sprintf("%d", stats.DroppedFrames)),
			headerStyle.Render("reserved"), stats.ReservedTypes,
			headerStyle.Render("no handler"), stats.NoHandler,
		))
	}

	if stats.Sends > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d (%d failed)", stats.Sends, stats.SendErrors)),
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))
	return b.String()
}

// renderEventLog formats the newest entries that fit in height lines
func renderEventLog(entries []eventLogEntry, height int) string {
	if height < 5 {
		height = 5
	}
	if len(entries) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, entry := range entries[max(0, len(entries)-height):] {
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return b.String()
}

// formatAge renders a duration at a human scale, largest two units first
func formatAge(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}

	units := []struct {
		name string
		size time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " and ")
}
