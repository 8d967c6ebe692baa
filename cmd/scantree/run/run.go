// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/config"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/driver"
	"github.com/oscilla-lab/scantree/internal/progress"
	"github.com/oscilla-lab/scantree/internal/tui"
)

const (
	fileArg     = "file"
	dataDirFlag = "data-dir"
	workersFlag = "workers"
	tuiFlag     = "tui"

	eventBufferSize = 256
)

// RunCmd is the command that executes a scan plan file.
var RunCmd = &cli.Command{
	Name:        "run",
	Description: "Run the scan described by a plan file (YAML or HCL).",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      fileArg,
			UsageText: "PLANFILE",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        dataDirFlag,
			Aliases:     []string{"d"},
			Usage:       "Directory measurement tables are written to",
			Value:       "scan-data",
			DefaultText: "scan-data",
		},
		&cli.IntFlag{
			Name:        workersFlag,
			Aliases:     []string{"w"},
			Usage:       "Maximum concurrent instrument operations per batch",
			Value:       driver.DefaultWorkers,
			DefaultText: "20",
		},
		&cli.BoolFlag{
			Name:        tuiFlag,
			Usage:       "Show a live terminal UI while the scan runs",
			Value:       false,
			DefaultText: "false",
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	fileName := cmd.StringArg(fileArg)
	if fileName == "" {
		return cli.Exit("Please provide a plan file to run", 1)
	}

	plan, err := config.Load(ctx, fileName)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load plan %s: %s", fileName, err.Error()), 1)
	}

	if err := plan.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("plan %s is invalid: %s", fileName, err.Error()), 1)
	}

	root, err := plan.BuildTree(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build scan tree from %s: %s", fileName, err.Error()), 1)
	}

	sink, err := driver.NewFileSink(afero.NewOsFs(), cmd.String(dataDirFlag))
	if err != nil {
		return cli.Exit("failed to create data directory: "+err.Error(), 1)
	}

	// The entry point's signal watchdog cancels this token, so an interrupt
	// stops the scan at the next batch boundary.
	token := cancellation.FromContext(ctx)
	if token == nil {
		token = cancellation.NewToken()
	}

	driverOpts := driver.WithDriverOptions(
		driver.WithWorkers(cmd.Int(workersFlag)),
		driver.WithSink(sink),
	)

	if cmd.Bool(tuiFlag) {
		runner := tui.NewRunner(ctx)

		q := driver.NewQueue(
			driver.WithQueueToken(token),
			driver.WithQueueReporter(runner.GetReporter()),
		)
		q.NewScan(plan.Name, root, driver.WithMetadata(plan.Metadata), driverOpts)

		if err := runner.Run(ctx, q.Run); err != nil {
			return cli.Exit("scan failed: "+err.Error(), 1)
		}

		return nil
	}

	reporter := progress.NewChannelReporter(ctx, eventBufferSize)
	defer reporter.Close()

	reporter.Listen(&logListener{ctx: ctx})

	q := driver.NewQueue(
		driver.WithQueueToken(token),
		driver.WithQueueReporter(reporter),
	)
	q.NewScan(plan.Name, root, driver.WithMetadata(plan.Metadata), driverOpts)

	if err := q.Run(ctx); err != nil {
		return cli.Exit("scan failed: "+err.Error(), 1)
	}

	return nil
}

// logListener writes progress events to the structured log, used when the
// TUI is off.
type logListener struct {
	ctx context.Context
}

// OnEvent implements progress.Listener.
func (l *logListener) OnEvent(event progress.Event) {
	switch event.Type {
	case progress.EventScanStateChanged:
		ctxlog.Info(l.ctx, "scan state changed", "scan", pathTail(event.ItemPath), "state", event.Data.State)
	case progress.EventBatchStarted:
		ctxlog.Info(l.ctx, "batch started", "batch", event.Data.BatchNumber, "items", event.Data.BatchSize)
	case progress.EventBatchCompleted:
		ctxlog.Debug(l.ctx, "batch completed", "batch", event.Data.BatchNumber)
	case progress.EventItemAdvanced:
		ctxlog.Info(l.ctx, "item advanced", "item", pathTail(event.ItemPath), "position", event.Data.Position)
	case progress.EventItemData:
		ctxlog.Info(l.ctx, "item produced data", "item", pathTail(event.ItemPath), "rows", event.Data.Rows)
	case progress.EventItemFailed:
		ctxlog.Error(l.ctx, "item failed", "item", pathTail(event.ItemPath), "error", event.Data.Error)
	}
}

func pathTail(path []string) string {
	if len(path) == 0 {
		return ""
	}

	return path[len(path)-1]
}
