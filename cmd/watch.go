// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/fwioo/me4l/pkg/bridge"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchURL         string
	watchUsername    string
	watchNoSSLVerify bool
	watchSend        []string
	watchCount       int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Display the frames published by a running bridge",
	Long: `Connect to a me4l bridge and print every frame it publishes.

Commands can be sent before watching with --send, in the form
"op[:arg[:value]]", for example:

  --send connect:ttyUSB0 --send speed:60 --send move:forward --send get:channel

For authenticated bridges the password is read from the ME4L_PASSWORD
environment variable, or prompted interactively if not set.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchURL, "url", "u", "ws://localhost:8056/ws", "Bridge URL (ws:// or wss://)")
	watchCmd.Flags().StringVar(&watchUsername, "username", "", "Username for HTTP Basic auth")
	watchCmd.Flags().BoolVar(&watchNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	watchCmd.Flags().StringArrayVar(&watchSend, "send", nil, "Command to send after connecting (repeatable)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Exit after this many frames (0 = forever)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmds := make([]bridge.Command, 0, len(watchSend))
	for _, s := range watchSend {
		c, err := parseBridgeCommand(s)
		if err != nil {
			return err
		}
		cmds = append(cmds, c)
	}

	opts := bridge.DialOptions{Username: watchUsername, SkipSSLVerify: watchNoSSLVerify}
	if watchUsername != "" {
		pw, err := getPassword()
		if err != nil {
			return err
		}
		opts.Password = pw
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn, err := bridge.Dial(ctx, watchURL, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "me4l - Bridge Watch\n")
	fmt.Fprintf(out, "Connection: %s\n", watchURL)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	for _, c := range cmds {
		seq, err := conn.Send(c)
		if err != nil {
			return fmt.Errorf("send %s: %w", c.Op, err)
		}
		fmt.Fprintf(out, "-> #%d %s\n", seq, c.Op)
	}

	for n := 0; watchCount == 0 || n < watchCount; n++ {
		f, err := conn.Next()
		if err != nil {
			if errors.Is(err, bridge.ErrConnectionClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, formatFrame(f))
	}
	return nil
}

// parseBridgeCommand parses "op[:arg[:value]]".
func parseBridgeCommand(s string) (bridge.Command, error) {
	parts := strings.Split(s, ":")
	c := bridge.Command{Op: strings.ToLower(parts[0])}
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	switch c.Op {
	case bridge.OpConnect:
		c.Port = arg(1)
	case bridge.OpDisconnect, bridge.OpSettings:
	case bridge.OpMove:
		c.Direction = arg(1)
	case bridge.OpSpeed:
		if _, err := fmt.Sscanf(arg(1), "%d", &c.Value); err != nil {
			return c, fmt.Errorf("invalid speed in %q", s)
		}
	case bridge.OpGet:
		c.Parameter = arg(1)
	case bridge.OpSet:
		c.Parameter = arg(1)
		if _, err := fmt.Sscanf(arg(2), "%d", &c.Value); err != nil {
			return c, fmt.Errorf("invalid value in %q", s)
		}
	default:
		return c, fmt.Errorf("unknown command %q", s)
	}
	return c, nil
}

// formatFrame formats a bridge frame as one line.
func formatFrame(f bridge.Frame) string {
	switch f.Kind {
	case bridge.KindState:
		if f.Reason != "" {
			return fmt.Sprintf("STATE %s (%s)", f.State, f.Reason)
		}
		return fmt.Sprintf("STATE %s", f.State)
	case bridge.KindSonar:
		return fmt.Sprintf("SONAR %v", f.Sonar)
	case bridge.KindStatus:
		return fmt.Sprintf("STATUS %s=%d % X", f.Parameter, f.Value, f.Status)
	case bridge.KindSettings:
		if f.Settings == nil {
			return "SETTINGS (empty)"
		}
		s := f.Settings
		return fmt.Sprintf("SETTINGS channel=%d speed=%d power=%d sensitivity=%d buffer=%d",
			s.Channel, s.Speed, s.Power, s.Sensitivity, s.BufferSize)
	case bridge.KindError:
		return fmt.Sprintf("ERROR %s", f.Error)
	case bridge.KindReply:
		switch {
		case f.Error != "":
			return fmt.Sprintf("<- #%d ERROR %s", f.Seq, f.Error)
		case f.Settings != nil:
			return fmt.Sprintf("<- #%d OK %+v", f.Seq, *f.Settings)
		case f.Parameter != "":
			return fmt.Sprintf("<- #%d OK %s=%d", f.Seq, f.Parameter, f.Value)
		}
		return fmt.Sprintf("<- #%d OK", f.Seq)
	}
	return fmt.Sprintf("%s %+v", strings.ToUpper(f.Kind), f)
}

// getPassword retrieves the bridge password from environment or prompts user
func getPassword() (string, error) {
	if pw := os.Getenv("ME4L_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
