// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwioo/me4l/pkg/bridge"
	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bridgeListen  string
	bridgePath    string
	bridgeConnect bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the robot to WebSocket clients",
	Long: `Run the poll loop and expose it over WebSocket.

Every driver event (link state, sonar readings, dongle status) is broadcast
to all connected clients as a CBOR frame. Clients drive the robot by sending
CBOR commands (connect, disconnect, move, speed, get, set, settings); each
command is answered with a reply frame carrying the same sequence number.

HTTP Basic authentication is enabled when bridge.username is configured.
The password is read from bridge.password (ME4L_BRIDGE_PASSWORD).`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", "", "Listen address (default from config, :8056)")
	bridgeCmd.Flags().StringVar(&bridgePath, "path", "", "WebSocket path (default from config, /ws)")
	bridgeCmd.Flags().BoolVar(&bridgeConnect, "connect", false, "Start polling the configured port immediately")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg := appConfig.Bridge
	if bridgeListen != "" {
		cfg.Listen = bridgeListen
	}
	if bridgePath != "" {
		cfg.Path = bridgePath
	}
	if cfg.Username != "" && cfg.Password == "" {
		return errors.New("bridge.username is set but bridge.password is empty")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	driver := rcr.NewDriver(newLink(), appConfig.DriverConfig(), logger)
	hub := bridge.NewHub(driver, logger)
	hub.SetBasicAuth(cfg.Username, cfg.Password)

	runDone := make(chan error, 1)
	go func() { runDone <- driver.Run(ctx) }()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx, driver.Events())
		close(hubDone)
	}()

	if bridgeConnect {
		if err := driver.Connect(ctx, appConfig.Port); err != nil {
			logger.Warn("Initial connect failed", zap.String("port", appConfig.Port), zap.Error(err))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, hub.ServeWS)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	fmt.Fprintf(cmd.OutOrStdout(), "me4l - Bridge\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on ws://%s%s\n", cfg.Listen, cfg.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl+C to exit\n")
	logger.Info("Bridge listening", zap.String("addr", cfg.Listen), zap.String("path", cfg.Path))

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Shutdown failed", zap.Error(serr))
	}
	<-runDone
	<-hubDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server: %w", err)
	}
	return nil
}
