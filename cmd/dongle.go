// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dongleFormat    string
	dongleApplyFile string
)

var dongleCmd = &cobra.Command{
	Use:   "dongle",
	Short: "Read and write the radio dongle's settings",
	Long: `Read and write the five MOBOT-RCR dongle parameters:

  channel      0-9
  speed        1-56
  power        0-7
  sensitivity  0-3
  buffer       1-128

Out of range values are rejected before anything is sent to the dongle.`,
}

var dongleGetCmd = &cobra.Command{
	Use:   "get <parameter>",
	Short: "Read one parameter",
	Args:  cobra.ExactArgs(1),
	RunE:  runDongleGet,
}

var dongleSetCmd = &cobra.Command{
	Use:   "set <parameter> <value>",
	Short: "Write one parameter",
	Args:  cobra.ExactArgs(2),
	RunE:  runDongleSet,
}

var dongleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Read all parameters",
	Args:  cobra.NoArgs,
	RunE:  runDongleShow,
}

var dongleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write all parameters from a YAML settings file",
	Long: `Write all five parameters from a YAML file in the format printed by
"me4l dongle show --format yaml". Use "-" to read from stdin.`,
	Args: cobra.NoArgs,
	RunE: runDongleApply,
}

func init() {
	rootCmd.AddCommand(dongleCmd)
	dongleCmd.AddCommand(dongleGetCmd, dongleSetCmd, dongleShowCmd, dongleApplyCmd)

	dongleShowCmd.Flags().StringVar(&dongleFormat, "format", "text", "Output format (text or yaml)")
	dongleApplyCmd.Flags().StringVarP(&dongleApplyFile, "file", "f", "", "Settings file")
	dongleApplyCmd.MarkFlagRequired("file")
}

// withDongle opens the configured port for the duration of fn.
func withDongle(fn func(d *rcr.Dongle, link *rcr.Link) error) error {
	link, err := openLink()
	if err != nil {
		return err
	}
	defer link.Close()
	return fn(rcr.NewDongle(link), link)
}

func runDongleGet(cmd *cobra.Command, args []string) error {
	p, err := rcr.ParseParameter(args[0])
	if err != nil {
		return err
	}
	return withDongle(func(d *rcr.Dongle, link *rcr.Link) error {
		v, err := d.Get(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", p, v)
		return nil
	})
}

func runDongleSet(cmd *cobra.Command, args []string) error {
	p, err := rcr.ParseParameter(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	if !p.Accepts(value) {
		return &rcr.InvalidParameterValueError{Parameter: p, Value: value}
	}
	return withDongle(func(d *rcr.Dongle, link *rcr.Link) error {
		if err := d.Set(p, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %d (status: %s)\n", p, value, rcr.FormatPacket(d.Status()))
		return nil
	})
}

func runDongleShow(cmd *cobra.Command, args []string) error {
	if dongleFormat != "text" && dongleFormat != "yaml" {
		return fmt.Errorf("unknown format %q (use text or yaml)", dongleFormat)
	}
	return withDongle(func(d *rcr.Dongle, link *rcr.Link) error {
		s, err := d.Settings()
		if err != nil {
			return err
		}
		return writeSettings(cmd.OutOrStdout(), link.Name(), s, dongleFormat)
	})
}

func runDongleApply(cmd *cobra.Command, args []string) error {
	s, err := readSettingsFile(dongleApplyFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	return withDongle(func(d *rcr.Dongle, link *rcr.Link) error {
		if err := d.Apply(s); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied settings to %s\n", link.Name())
		return writeSettings(cmd.OutOrStdout(), link.Name(), s, "text")
	})
}

func writeSettings(w io.Writer, port string, s rcr.Settings, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "Dongle on %s:\n", port)
	for _, p := range rcr.Parameters {
		lo, hi := p.Range()
		fmt.Fprintf(w, "  %-12s %4d   (%d-%d)\n", p, s.Value(p), lo, hi)
	}
	return nil
}

// readSettingsFile parses and validates a settings file. Every parameter
// must be present.
func readSettingsFile(path string, stdin io.Reader) (rcr.Settings, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return rcr.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var raw map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return rcr.Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	var s rcr.Settings
	seen := make(map[rcr.Parameter]bool)
	for key, v := range raw {
		p, err := rcr.ParseParameter(key)
		if err != nil {
			return rcr.Settings{}, err
		}
		s.SetValue(p, v)
		seen[p] = true
	}
	for _, p := range rcr.Parameters {
		if !seen[p] {
			return rcr.Settings{}, fmt.Errorf("settings file is missing %s", p)
		}
	}
	return s, s.Validate()
}
