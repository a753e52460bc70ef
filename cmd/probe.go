// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/spf13/cobra"
)

// Probe exit codes
const (
	probeOK       = 0
	probeTimeout  = 1
	probeConnFail = 2
)

var (
	probeTimeoutSeconds int
	probeShowStats      bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the link by waiting for a sensor report from the robot",
	Long: `Poll the robot with idle motion packets until it answers with a valid
sensor report or the timeout is reached.

Replies that are not sensor reports (line noise, partial packets) are shown
and ignored.

Exit codes:
  0 - Sensor report received before timeout
  1 - Timeout reached without receiving a valid report
  2 - Connection error

Useful for checking the dongle, the radio channel and the robot in one go.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeoutSeconds, "timeout", 10, "Timeout in seconds to wait for a report")
	probeCmd.Flags().BoolVar(&probeShowStats, "stats", false, "Print link statistics when done")
}

func runProbe(cmd *cobra.Command, args []string) error {
	link, err := openLink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(probeConnFail)
	}
	defer link.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "me4l - Link Probe\n")
	fmt.Fprintf(out, "Port: %s @ %d baud\n", link.Name(), rcr.BaudRate)
	fmt.Fprintf(out, "Timeout: %d seconds\n", probeTimeoutSeconds)
	fmt.Fprintf(out, "Waiting for sensor report...\n\n")

	stats := rcr.NewStatistics()
	code := probe(link, stats, time.Duration(probeTimeoutSeconds)*time.Second, appConfig.PollInterval, out)
	if probeShowStats {
		fmt.Fprintln(out)
		fmt.Fprint(out, stats.String())
	}
	link.Close()
	os.Exit(code)
	return nil
}

// probe polls until a valid report arrives and returns the exit code.
func probe(link rcr.Transactor, stats *rcr.Statistics, timeout, interval time.Duration, out io.Writer) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		reply, err := link.Transact(rcr.IdleCommand.Bytes())
		stats.RecordPoll(reply, err)
		if err != nil {
			fmt.Fprintf(out, "Link error: %v\n", err)
			var lwe *rcr.LinkWriteError
			if errors.As(err, &lwe) {
				return probeConnFail
			}
		} else if report, ok := rcr.DecodeReport(reply); ok {
			s := report.Sonar()
			fmt.Fprintf(out, "SUCCESS: Received sensor report\n")
			fmt.Fprintf(out, "  Packet: %s\n", rcr.FormatPacket(reply))
			fmt.Fprintf(out, "  Sonar:  %d, %d, %d\n", s[0], s[1], s[2])
			fmt.Fprintf(out, "  Polls:  %d\n", stats.Polls)
			return probeOK
		} else if reply != nil {
			fmt.Fprintf(out, "(ignored reply: %s)\n", rcr.FormatPacket(reply))
		}

		select {
		case <-ticker.C:
		case <-deadline:
			fmt.Fprintf(out, "TIMEOUT: No sensor report received within %v\n", timeout)
			return probeTimeout
		}
	}
}
