// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the scantree command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/oscilla-lab/scantree"
	"github.com/oscilla-lab/scantree/cmd/scantree/run"
	"github.com/oscilla-lab/scantree/cmd/scantree/show"
	"github.com/oscilla-lab/scantree/cmd/scantree/validate"
	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/signalbroker"

	// Register the built-in instrument factories.
	_ "github.com/oscilla-lab/scantree/internal/allinstruments"
)

// rootCmd is the root command for the CLI.
var rootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		show.ShowCmd,
		validate.ValidateCmd,
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "scantree",
	Description: `Scantree executes laboratory scans described as trees of instrument
operations. A plan file declares the instruments and the nested movement and
measurement items; the scheduler batches compatible items, runs each batch
concurrently, and streams measurement tables to disk. Running scans can be
paused, resumed and aborted, and an interrupt stops the scan cleanly at the
next batch boundary.`,
	Usage:     "scantree run myscan.yaml",
	Copyright: "Copyright (c) oscilla-lab 2025. All rights reserved.",
	Authors: []any{
		"oscilla-lab",
	},
	EnableShellCompletion: true,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	defer cancel()

	token := cancellation.NewToken()
	ctx = context.WithValue(ctx, cancellation.TokenContextKey{}, token)

	sigCh := signalbroker.New(ctx)

	go signalbroker.Watch(ctx, sigCh, token, cancel)

	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", scantree.Version, scantree.Commit)

	err := rootCmd.Run(ctx, os.Args)

	if ctx.Err() != nil {
		ctxlog.Logger(ctx).Error("command terminated due to cancellation", "error", ctx.Err())
		os.Exit(1)
	}

	if err != nil {
		ctxlog.Logger(ctx).Error("command execution failed", "error", err)
		os.Exit(1)
	}

	ctxlog.Logger(ctx).Info("command completed successfully")
}
