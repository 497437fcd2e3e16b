// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Safewire - SafeTransfer framed channel toolkit

package main

import (
	"os"

	"github.com/Thermoquad/safewire/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
