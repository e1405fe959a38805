// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// vici is the command-line tool for the VICI protocol: message
// conversion and inspection, daemon calls and event watching, packet
// captures, and a fixture-driven mock daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/cmd/vici/commands"
	"github.com/bureau-foundation/vici/lib/clock"
	"github.com/bureau-foundation/vici/lib/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		// Commands that print their own verdict (like message validate)
		// return an ExitError with the desired exit code. Don't print a
		// redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.Categorize(err).ExitCode())
	}
}

// run parses the global flags, loads the configuration and dispatches
// the remaining arguments to the command tree.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("vici", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	configPath := flagSet.String("config", "", "configuration file (default $"+config.EnvironmentVariable+")")
	logLevel := flagSet.String("log-level", "", "debug, info, warn or error (default log.level from config)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			args = []string{"--help"}
		} else {
			return cli.Validation("%v\n\nRun 'vici --help' for usage.", err)
		}
	} else {
		args = flagSet.Args()
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cli.Validation("%w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cli.Validation("invalid configuration:\n%w", err)
	}

	logger, err := cli.NewCommandLogger(stderr, cfg.Log.Level)
	if err != nil {
		return cli.Validation("%w", err)
	}

	env := &cli.Environment{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Config: cfg,
		Logger: logger,
		Clock:  clock.Real(),
	}
	return commands.Root(env).Execute(ctx, args)
}
