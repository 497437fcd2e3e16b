// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive TUI for sending and receiving frames",
	Long: `Send values to --address by typing them, and watch received frames.

Type a value of the --payload type and press Enter to send it as a DATA frame.
Received frames and send failures appear in the event log.

Keys:
  Enter   send the typed value
  Ctrl+R  reset statistics
  Esc     quit`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

type sentMsg struct {
	value string
	err   error
}

// consoleModel is the interactive console
type consoleModel struct {
	sess     session
	connInfo string
	address  uint8

	input         textinput.Model
	stats         *safetransfer.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	lastValue     string

	ended    bool
	width    int
	height   int
	quitting bool
}

func initialConsoleModel(sess session, connInfo string, address uint8) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "value"
	ti.Prompt = "send> "
	ti.CharLimit = 32
	ti.Width = 24
	ti.Focus()

	return consoleModel{
		sess:          sess,
		connInfo:      connInfo,
		address:       address,
		input:         ti,
		stats:         safetransfer.NewStatistics(),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

// sendValue sends value off the UI goroutine
func (m consoleModel) sendValue(value string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return sentMsg{value: value, err: sess.Send(value)}
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		case "enter":
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.sendValue(value)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case sentMsg:
		m.stats.RecordSend(msg.err)
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("SEND %s failed: %v", msg.value, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("-> 0x%02X %s", m.address, msg.value), false)
		}
		return m, nil

	case resultMsg:
		r := report(msg)
		m.stats.RecordReceive(r.Status, r.Type, r.Reason)
		switch r.Status {
		case safetransfer.StatusDelivered:
			m.lastValue = r.Value
			m.addLogEntry(fmt.Sprintf("<- %s value=%s", r.Type, r.Value), false)
		case safetransfer.StatusDropped:
			m.addLogEntry(fmt.Sprintf("DROPPED %s: %v", r.Type, r.Reason), false)
		case safetransfer.StatusRejected:
			m.addLogEntry(fmt.Sprintf("REJECTED %s: %v [%s]", r.Type, r.Reason, safetransfer.FormatHex(r.Frame)), true)
		}
		return m, nil

	case connectionEndedMsg:
		m.ended = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection closed", false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SAFEWIRE - CONSOLE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Payload: %s | Peer: 0x%02X | Esc to quit",
		m.connInfo, m.sess.PayloadName(), m.address)))
	s.WriteString("\n\n")

	if m.ended {
		s.WriteString(errorStyle.Render("Connection ended"))
		s.WriteString("\n\n")
	}

	s.WriteString(boxStyle.Render(renderStats(m.stats)))
	s.WriteString("\n\n")

	if m.lastValue != "" {
		s.WriteString(fmt.Sprintf("%s %s\n\n",
			statsLabelStyle.Render("Last received:"), statsValueStyle.Render(m.lastValue)))
	}

	s.WriteString(m.input.View())
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.eventLog, m.height-17)))

	return s.String()
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !addressSet(cmd) {
		return fmt.Errorf("console: %w (use --address)", safetransfer.ErrNoAddress)
	}

	// The event log replaces log output on the alternate screen
	logger = zerolog.Nop()

	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	stream, connInfo, err := openStreamBus(sess.FrameSize())
	if err != nil {
		return err
	}
	defer stream.Close()
	sess.Bind(stream)
	sess.SetAddress(peerAddress)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialConsoleModel(sess, connInfo, peerAddress), tea.WithContext(ctx))
	go func() {
		err := pollStream(ctx, sess, stream, func(r report) {
			p.Send(resultMsg(r))
		})
		p.Send(connectionEndedMsg{err: err})
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
