// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string

	// Loaded in PersistentPreRunE
	appConfig *Config
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "me4l",
	Short: "Mobot Explorer for Linux",
	Long: `me4l - drive a MOBOT robot through its MOBOT-RCR radio dongle.

Provides commands for listing serial ports, reading and writing the dongle's
radio settings, driving the robot with live sonar readings, probing the link
and bridging the robot to remote WebSocket clients.

Configuration is read from flags, ME4L_* environment variables (a .env file
in the working directory is loaded first) and the YAML config file, in that
order of precedence.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg

		logger, err = buildLogger(cfg, isTUICommand(cmd))
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.config/me4l/config.yaml)")
	flags.StringP("port", "p", "", "Serial port name, e.g. ttyUSB0")
	flags.StringSlice("patterns", nil, "Glob patterns used to discover serial ports")
	flags.BoolP("verbose", "v", false, "Log every packet exchanged with the dongle")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
