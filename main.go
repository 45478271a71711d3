package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/bulkexport"
	"github.com/dpc-contract-tests/bulkcheck/config"
	"github.com/dpc-contract-tests/bulkcheck/dpctests"
	"github.com/dpc-contract-tests/bulkcheck/fakeapi"
	"github.com/dpc-contract-tests/bulkcheck/fixtures"
	"github.com/dpc-contract-tests/bulkcheck/framework"
	"github.com/dpc-contract-tests/bulkcheck/logging"
	"github.com/dpc-contract-tests/bulkcheck/transport"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultFakePort = 3002

// errTestsFailed makes the process exit with status 1 without printing anything more.
var errTestsFailed = errors.New("tests failed")

func main() {
	err := newRootCommand(os.Stdout, os.Stderr).Execute()
	if err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:           "bulkcheck",
		Short:         "End-to-end contract tests for a bulk data export API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), params.configFile)
			if err != nil {
				return err
			}
			return runTests(cfg, params, stdout, stderr)
		},
	}
	params.addFlags(cmd.Flags())
	cmd.AddCommand(serveFakeCommand(stderr))
	return cmd
}

func runTests(cfg *config.Config, params commandParams, stdout, stderr io.Writer) error {
	if cfg.NoColor {
		color.NoColor = true
	}
	logger, err := logging.New(stderr, logging.Options{Level: cfg.LogLevel, Console: true, NoColor: cfg.NoColor})
	if err != nil {
		return err
	}
	rules, err := bulkexport.LoadRuleSet(cfg.Rules)
	if err != nil {
		return err
	}

	mainDebugLogger := framework.NullLogger()
	if cfg.DebugAll {
		mainDebugLogger = logging.AsPrintf(logger, zerolog.DebugLevel)
	}
	logger.Info().Str("url", cfg.URL).Msg("waiting for API")
	harness, err := framework.NewTestHarness(
		cfg.URL,
		cfg.StatusURL(),
		cfg.StatusTimeout,
		transport.New(),
		dpctests.DescribeCapabilityStatement,
		mainDebugLogger,
		stdout,
	)
	if err != nil {
		return fmt.Errorf("API error: %w", err)
	}

	fmt.Fprintln(stdout)
	framework.PrintFilterDescription(stdout, harness, params.filters, dpctests.AllCapabilities)

	fmt.Fprintln(stdout, "Running test suite")
	testLogger := &ConsoleTestLogger{
		Out:                  stdout,
		DebugOutputOnFailure: cfg.Debug || cfg.DebugAll,
		DebugOutputOnSuccess: cfg.DebugAll,
	}
	suiteConfig := dpctests.Config{
		Fixtures:        fixtures.NewLoader(cfg.Fixtures),
		Rules:           rules,
		PollInterval:    cfg.PollInterval,
		PollTimeout:     cfg.PollTimeout,
		PollMaxAttempts: cfg.PollMaxAttempts,
		RangeBytes:      cfg.RangeBytes,
	}
	started := time.Now()
	results := dpctests.RunTestSuite(harness, suiteConfig, params.filters.AsFilter, testLogger)
	logger.Debug().Dur("elapsed", time.Since(started)).Int("tests", len(results.Tests)).Msg("test run finished")

	fmt.Fprintln(stdout)
	framework.PrintResults(stdout, results)
	if !results.OK() {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "To run the failed tests again:")
		fmt.Fprintf(stdout, "  %s\n", rerunCommand(cfg, params, results))
		return errTestsFailed
	}
	return nil
}

func serveFakeCommand(stderr io.Writer) *cobra.Command {
	var port, pendingPolls int
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run an in-memory fake of the export API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(stderr, logging.Options{Level: logLevel, Console: true})
			if err != nil {
				return err
			}
			server := fakeapi.New(fakeapi.Options{PendingPolls: pendingPolls, Logger: &logger})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(":" + strconv.Itoa(port))
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultFakePort, "port to listen on")
	cmd.Flags().IntVar(&pendingPolls, "pending-polls", 2, "status requests answered with 202 before an export completes")
	cmd.Flags().StringVar(&logLevel, config.KeyLogLevel, config.DefaultLogLevel, "log level")
	return cmd
}
