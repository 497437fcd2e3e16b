// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var encodeType string

var encodeCmd = &cobra.Command{
	Use:   "encode VALUE",
	Short: "Print the frame for a value",
	Long: `Encode VALUE as a --payload frame and print it as hex.

No connection is opened. --type selects the packet type (data, ack, error,
retry).`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

var decodeCmd = &cobra.Command{
	Use:   "decode HEX",
	Short: "Check and decode a frame",
	Long: `Decode a hex frame as --payload and report what a receiver would do with it.

Spaces and colons in HEX are ignored. Exits non-zero when the frame would be
rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	encodeCmd.Flags().StringVar(&encodeType, "type", "data", "Packet type (data, ack, error, retry)")
}

func runEncode(cmd *cobra.Command, args []string) error {
	typ, err := parsePacketType(encodeType)
	if err != nil {
		return err
	}

	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	frame, err := sess.Encode(args[0], typ)
	if err != nil {
		return err
	}
	fmt.Println(safetransfer.FormatHex(frame))
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	frame, err := parseHex(strings.Join(args, ""))
	if err != nil {
		return err
	}

	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	fmt.Println(sess.Describe(frame))
	r := sess.Dispatch(frame)
	fmt.Println(r.Line)
	if r.Status == safetransfer.StatusRejected {
		return r.Reason
	}
	return nil
}

// parseHex accepts "00 2A 00", "00:2a:00" and "002a00"
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return b, nil
}

func parsePacketType(s string) (safetransfer.PacketType, error) {
	for t := safetransfer.PacketData; t.Valid(); t++ {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown packet type %q", s)
}
