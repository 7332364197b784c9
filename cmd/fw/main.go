// Package main is the entrypoint for the fw CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	// Import parser templates to register them
	_ "github.com/eugenetaranov/fwhelper/internal/parser/ios"

	"github.com/eugenetaranov/fwhelper/internal/config"
	"github.com/eugenetaranov/fwhelper/internal/fleet"
	"github.com/eugenetaranov/fwhelper/internal/logging"
	"github.com/eugenetaranov/fwhelper/internal/negotiate"
	"github.com/eugenetaranov/fwhelper/internal/output"
	"github.com/eugenetaranov/fwhelper/internal/probe"
	"github.com/eugenetaranov/fwhelper/internal/report"
	"github.com/eugenetaranov/fwhelper/internal/transfer"
	"github.com/eugenetaranov/fwhelper/internal/verify"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fw",
	Short: "fw - Firmware readiness and transfer for network devices",
	Long: `fw checks a fleet of network devices over SSH or Telnet, reports their
running firmware and storage, and stages new firmware images on them.

Devices are handled concurrently; a failure on one device never stops
the others.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(checkTransportCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(templatesCmd)
}

// app bundles what every fleet command needs.
type app struct {
	settings *config.Settings
	log      zerolog.Logger
	out      *output.Output
	exec     *fleet.Executor
	release  func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, release, err := logging.New(settings.Logging())
	if err != nil {
		return nil, err
	}

	out := output.New(os.Stdout)
	out.SetColor(!settings.NoColor)
	out.SetDebug(settings.Debug)

	prober := probe.New(settings.ProbeTimeout(), logging.Component(log, "probe"))

	checker := verify.New(settings.PollInterval, settings.VerifyTimeout, logging.Component(log, "verify"))
	copier := negotiate.New(settings.PollInterval, settings.CopyTimeout, logging.Component(log, "negotiate"))
	engine := transfer.New(checker, copier, logging.Component(log, "transfer"))
	engine.FileSystem = settings.FileSystem

	exec := fleet.New(settings.Parallel, prober, engine, logging.Component(log, "fleet"))
	exec.JobTimeout = settings.JobTimeout
	exec.Output = out

	return &app{
		settings: settings,
		log:      log,
		out:      out,
		exec:     exec,
		release:  release,
	}, nil
}

func (a *app) close() {
	if err := a.release(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log: %v\n", err)
	}
}

// save writes v to the configured output file.
func (a *app) save(v any) error {
	f, err := os.Create(a.settings.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := report.Write(f, a.settings.ReportFormat(), v); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	a.out.Info("Results written to %s", a.settings.Output)
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, closing sessions...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
