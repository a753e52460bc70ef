// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"fmt"
	"strings"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports that can be opened",
	Long: `Scan the configured device patterns and list every serial port that can be
opened at the dongle's line settings (56000 baud, 8N1).

Ports that exist but cannot be opened (busy, no permission) are skipped.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	catalog := rcr.NewCatalog(appConfig.Patterns, rcr.OpenSerial, logger)
	ports := catalog.Enum()

	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintf(out, "No serial ports found (patterns: %s)\n", strings.Join(appConfig.Patterns, ", "))
		return nil
	}

	fmt.Fprintf(out, "Found %d serial port(s):\n", len(ports))
	for _, name := range catalog.Names() {
		fmt.Fprintf(out, "  %-12s %s\n", name, ports[name])
	}
	return nil
}
