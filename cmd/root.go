// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Host I2C adapter flag
	i2cPath string

	// Channel flags
	payloadType string
	peerAddress uint8
	bigEndian   bool

	configPath string
	logLevel   string

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "safewire",
	Short: "SafeTransfer framed channel toolkit",
	Long: `Safewire - A CLI tool for sending, receiving and analyzing SafeTransfer frames.

Every frame is [type][payload][crc16], where the payload is a fixed-size value
chosen with --payload and the CRC is CRC-16/XMODEM over type and payload.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  I2C:       --i2c /dev/i2c-1 (send and scan only, as bus controller)

Settings may also come from a TOML file given with --config. Flags given on
the command line always win over the file.

For WebSocket authentication, the password is read from the SAFEWIRE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// I2C adapter flag
	rootCmd.PersistentFlags().StringVar(&i2cPath, "i2c", "", "Linux i2c-dev device (send and scan only)")

	// Channel flags
	rootCmd.PersistentFlags().StringVar(&payloadType, "payload", "int32",
		"Payload type ("+strings.Join(payloadTypeNames(), ", ")+")")
	rootCmd.PersistentFlags().Uint8Var(&peerAddress, "address", 0, "Peer bus address for sends")
	rootCmd.PersistentFlags().BoolVar(&bigEndian, "big-endian", false, "Use big-endian payload and CRC byte order")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
}

// setup applies the config file and builds the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := applyConfigFile(cmd.Flags(), configPath); err != nil {
			return err
		}
	}

	l, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// newLogger builds a console logger on w at the named level
func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// addressSet reports whether a peer address was configured
func addressSet(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("address")
}

// pollInterval is how often commands drive Poll on a stream bus
const pollInterval = 5 * time.Millisecond

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
