// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// fileConfig mirrors the persistent flags. Keys left out of the file keep
// their flag defaults.
type fileConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
	I2C         string `toml:"i2c"`
	Payload     string `toml:"payload"`
	Address     int    `toml:"address"`
	BigEndian   bool   `toml:"big_endian"`
	LogLevel    string `toml:"log_level"`
}

// applyConfigFile loads path and sets every flag the file defines, unless
// the flag was already given on the command line
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	set := func(key, flag, value string) error {
		if !meta.IsDefined(key) || flags.Changed(flag) {
			return nil
		}
		if err := flags.Set(flag, value); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		return nil
	}

	if meta.IsDefined("address") && (raw.Address < 0 || raw.Address > 0xFF) {
		return fmt.Errorf("config address: %d out of range 0-255", raw.Address)
	}

	for _, s := range []struct{ key, flag, value string }{
		{"port", "port", strings.TrimSpace(raw.Port)},
		{"baud", "baud", strconv.Itoa(raw.Baud)},
		{"url", "url", strings.TrimSpace(raw.URL)},
		{"username", "username", strings.TrimSpace(raw.Username)},
		{"no_ssl_verify", "no-ssl-verify", strconv.FormatBool(raw.NoSSLVerify)},
		{"i2c", "i2c", strings.TrimSpace(raw.I2C)},
		{"payload", "payload", strings.TrimSpace(raw.Payload)},
		{"address", "address", strconv.Itoa(raw.Address)},
		{"big_endian", "big-endian", strconv.FormatBool(raw.BigEndian)},
		{"log_level", "log-level", strings.TrimSpace(raw.LogLevel)},
	} {
		if err := set(s.key, s.flag, s.value); err != nil {
			return err
		}
	}
	return nil
}
