// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors
//
// me4l - Mobile Robot Serial Driver
//
// A CLI tool for driving a three-sonar mobile robot through its radio
// dongle and publishing its sonar readings.

package main

import (
	"os"

	"github.com/fwioo/me4l/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
