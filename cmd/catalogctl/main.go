// Package main provides catalogctl, a small CLI that builds a catalog from a
// rules file and member definitions, dispatches URLs, prints schemas and
// persists snapshots.
package main

import (
	"fmt"
	"os"
	"time"

	strata "github.com/goliatone/go-strata"
	"github.com/spf13/cobra"
)

const (
	envRules    = "CATALOGCTL_RULES"
	envDB       = "CATALOGCTL_DB"
	envLogMode  = "CATALOGCTL_LOG_MODE"
	envLogLevel = "CATALOGCTL_LOG_LEVEL"
	envEngine   = "CATALOGCTL_ENGINE"
)

type rootOptions struct {
	rulesPath string
	logMode   string
	logLevel  string
	engine    string
	trace     bool
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect and persist layered catalogs",
		Long:          `catalogctl loads dispatch rules and catalog member definitions, resolves traits across strata, and saves or restores catalog snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.rulesPath, "rules", os.Getenv(envRules), "Dispatch rules file (YAML or JSON)")
	flags.StringVar(&opts.logMode, "log-mode", envOr(envLogMode, "dev"), "Log mode: dev or prod")
	flags.StringVar(&opts.logLevel, "log-level", envOr(envLogLevel, "warn"), "Minimum log level")
	flags.StringVar(&opts.engine, "engine", envOr(envEngine, strata.EngineExpr), "Expression engine for rule matchers: expr, cel or js")
	flags.BoolVar(&opts.trace, "trace", false, "Log catalog activity events")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout for trial loads over HTTP")

	rootCmd.AddCommand(newDispatchCmd(opts))
	rootCmd.AddCommand(newShowCmd(opts))
	rootCmd.AddCommand(newSchemaCmd(opts))
	rootCmd.AddCommand(newSnapshotCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
