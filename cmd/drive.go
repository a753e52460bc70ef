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
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwioo/me4l/pkg/bridge"
	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var driveText bool

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Drive the robot with live sonar readings",
	Long: `Drive the robot from the keyboard while watching its sonar.

The robot is polled every poll interval. Each drive key press keeps the
robot moving for the move window, so holding a key drives continuously and
releasing it stops the robot shortly after. If the robot stops answering
for the watchdog timeout the link is declared lost and polling stops.

TUI keys:
  tab          switch between port list and drive panel
  enter / c    connect to the selected port
  x            disconnect
  arrows/wasd  drive
  space        stop
  + / -        speed up / down
  q            quit

When stdout is not a terminal, or with --text, commands are read line by
line from stdin instead (type "help" for the list).`,
	Annotations: map[string]string{"tui": "true"},
	Args:        cobra.NoArgs,
	RunE:        runDrive,
}

func init() {
	rootCmd.AddCommand(driveCmd)
	driveCmd.Flags().BoolVar(&driveText, "text", false, "Use line-based text mode instead of the TUI")
}

// driveController is what the drive front ends need from the driver.
type driveController interface {
	bridge.Controller
	SelectPort(ctx context.Context, name string) error
	Stats(ctx context.Context) (rcr.Statistics, error)
	State() rcr.LinkState
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func runDrive(cmd *cobra.Command, args []string) error {
	link := newLink()
	driver := rcr.NewDriver(link, appConfig.DriverConfig(), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runDone := make(chan error, 1)
	go func() { runDone <- driver.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	if isTUICommand(cmd) {
		return runDriveTUI(ctx, driver, link.Catalog())
	}
	return runDriveText(ctx, driver, cmd.InOrStdin(), cmd.OutOrStdout())
}

// runDriveTUI runs the drive TUI, forwarding driver events to it.
func runDriveTUI(ctx context.Context, driver *rcr.Driver, catalog *rcr.Catalog) error {
	m := initialDriveModel(ctx, driver, catalog.Enum(), appConfig.Port)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for ev := range driver.Events() {
			p.Send(driverEventMsg{event: ev})
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runDriveText runs the line-based front end.
func runDriveText(ctx context.Context, ctrl driveController, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "me4l - Drive (text mode)\n")
	fmt.Fprintf(out, "Type \"help\" for commands, \"quit\" to exit\n\n")

	if d, ok := ctrl.(*rcr.Driver); ok {
		go printEvents(d.Events(), out)
	}

	if appConfig != nil && appConfig.Port != "" {
		if err := ctrl.Connect(ctx, appConfig.Port); err != nil {
			fmt.Fprintf(out, "connect: %v\n", err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execDriveLine(ctx, ctrl, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func printEvents(events <-chan rcr.Event, out io.Writer) {
	for ev := range events {
		fmt.Fprintln(out, describeEvent(ev))
	}
}

// describeEvent formats a driver event as one line.
func describeEvent(ev rcr.Event) string {
	ts := time.Now().Format("15:04:05.000")
	switch e := ev.(type) {
	case rcr.StateEvent:
		if e.Reason != "" {
			return fmt.Sprintf("[%s] LINK %s (%s)", ts, strings.ToUpper(e.State.String()), e.Reason)
		}
		return fmt.Sprintf("[%s] LINK %s", ts, strings.ToUpper(e.State.String()))
	case rcr.SonarEvent:
		r := e.Reading
		return fmt.Sprintf("[%s] SONAR %3d %3d %3d", ts, r[0], r[1], r[2])
	case rcr.StatusEvent:
		return fmt.Sprintf("[%s] SET %s=%d (status: %s)", ts, e.Parameter, e.Value, rcr.FormatPacket(e.Status))
	case rcr.SettingsEvent:
		s := e.Settings
		return fmt.Sprintf("[%s] DONGLE channel=%d speed=%d power=%d sensitivity=%d buffer=%d",
			ts, s.Channel, s.Speed, s.Power, s.Sensitivity, s.BufferSize)
	case rcr.ErrorEvent:
		return fmt.Sprintf("[%s] ERROR %v", ts, e.Err)
	}
	return fmt.Sprintf("[%s] %T", ts, ev)
}

const driveHelp = `Commands:
  connect [port]         start polling (port from --port if omitted)
  disconnect             stop polling and close the port
  select <port>          open a port without polling
  forward|backward|left|right [duration]
                         drive for one move window, or for duration (e.g. 2s)
  stop                   stop the motors
  speed <0-100>          set the drive speed
  get <parameter>        read a dongle parameter
  set <parameter> <v>    write a dongle parameter
  show                   read all dongle parameters
  stats                  print link statistics
  quit                   exit
`

// execDriveLine runs one text-mode command. It reports whether to quit.
func execDriveLine(ctx context.Context, ctrl driveController, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprint(out, driveHelp)
		return false, nil

	case "connect":
		name := ""
		if len(rest) > 0 {
			name = rest[0]
		} else if appConfig != nil {
			name = appConfig.Port
		}
		return false, ctrl.Connect(ctx, name)
	case "disconnect":
		return false, ctrl.Disconnect(ctx)
	case "select":
		if len(rest) != 1 {
			return false, errors.New("usage: select <port>")
		}
		return false, ctrl.SelectPort(ctx, rest[0])

	case "forward", "backward", "left", "right", "stop", "w", "s", "a", "d", "x":
		dir, err := rcr.ParseDirection(expandDirection(verb))
		if err != nil {
			return false, err
		}
		if len(rest) == 0 {
			return false, ctrl.Move(ctx, dir)
		}
		d, err := time.ParseDuration(rest[0])
		if err != nil {
			return false, fmt.Errorf("invalid duration %q: %w", rest[0], err)
		}
		return false, driveFor(ctx, ctrl, dir, d)

	case "speed":
		if len(rest) != 1 {
			return false, errors.New("usage: speed <0-100>")
		}
		pct, err := strconv.Atoi(rest[0])
		if err != nil {
			return false, fmt.Errorf("invalid speed %q", rest[0])
		}
		return false, ctrl.SetSpeed(ctx, pct)

	case "get":
		if len(rest) != 1 {
			return false, errors.New("usage: get <parameter>")
		}
		p, err := rcr.ParseParameter(rest[0])
		if err != nil {
			return false, err
		}
		v, err := ctrl.Get(ctx, p)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s = %d\n", p, v)
		return false, nil

	case "set":
		if len(rest) != 2 {
			return false, errors.New("usage: set <parameter> <value>")
		}
		p, err := rcr.ParseParameter(rest[0])
		if err != nil {
			return false, err
		}
		v, err := strconv.Atoi(rest[1])
		if err != nil {
			return false, fmt.Errorf("invalid value %q", rest[1])
		}
		return false, ctrl.Set(ctx, p, v)

	case "show":
		s, err := ctrl.Settings(ctx)
		if err != nil {
			return false, err
		}
		return false, writeSettings(out, "current port", s, "text")

	case "stats":
		s, err := ctrl.Stats(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Link: %s\n", ctrl.State())
		fmt.Fprint(out, s.String())
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q (type \"help\")", verb)
}

func expandDirection(verb string) string {
	switch verb {
	case "w":
		return "forward"
	case "s":
		return "backward"
	case "a":
		return "left"
	case "d":
		return "right"
	case "x":
		return "stop"
	}
	return verb
}

// driveFor repeats a drive request often enough to keep the move window
// open for d.
func driveFor(ctx context.Context, ctrl driveController, dir rcr.Direction, d time.Duration) error {
	window := rcr.DefaultMoveWindow
	if appConfig != nil && appConfig.MoveWindow > 0 {
		window = appConfig.MoveWindow
	}
	ticker := time.NewTicker(window / 2)
	defer ticker.Stop()
	stop := time.After(d)

	for {
		if err := ctrl.Move(ctx, dir); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
		}
	}
}
