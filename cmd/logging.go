// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// buildLogger returns the logger for this invocation. Full-screen commands
// must not write to the terminal, so without a log file they get a no-op
// logger.
func buildLogger(cfg *Config, tui bool) (*zap.Logger, error) {
	if tui && cfg.LogFile == "" {
		return zap.NewNop(), nil
	}

	zc := zap.NewDevelopmentConfig()
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if cfg.LogFile != "" {
		zc.Encoding = "json"
		zc.EncoderConfig = zap.NewProductionEncoderConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.OutputPaths = []string{cfg.LogFile}
		zc.ErrorOutputPaths = []string{cfg.LogFile}
	} else {
		zc.OutputPaths = []string{"stderr"}
	}
	return zc.Build()
}

// isTUICommand reports whether cmd takes over the terminal.
func isTUICommand(cmd *cobra.Command) bool {
	if cmd.Annotations["tui"] != "true" {
		return false
	}
	text, _ := cmd.Flags().GetBool("text")
	return !text && stdoutIsTerminal()
}
