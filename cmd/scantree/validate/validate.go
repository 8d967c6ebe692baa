// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package validate

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v3"

	"github.com/oscilla-lab/scantree/internal/config"
)

const pathArg = "path"

// ValidateCmd is the command that checks plan files without running them.
var ValidateCmd = &cli.Command{
	Name:        "validate",
	Description: "Validate a plan file, or every plan file in a directory.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      pathArg,
			UsageText: "PLANFILE|DIR",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg(pathArg)
	if path == "" {
		return cli.Exit("Please provide a plan file or directory to validate", 1)
	}

	info, err := config.Fs.Stat(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read %s: %s", path, err.Error()), 1)
	}

	if !info.IsDir() {
		plan, err := config.Load(ctx, path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load plan %s: %s", path, err.Error()), 1)
		}

		if err := plan.Validate(); err != nil {
			return cli.Exit(fmt.Sprintf("plan %s is invalid:\n%s", path, err.Error()), 1)
		}

		fmt.Fprintf(cmd.Writer, "%s: ok (%d instruments, %d items)\n", path, len(plan.Instruments), countItems(plan.Items))

		return nil
	}

	plans, err := config.LoadDir(ctx, path)

	var merr *multierror.Error

	merr = multierror.Append(merr, err)

	for _, plan := range plans {
		if verr := plan.Validate(); verr != nil {
			merr = multierror.Append(merr, fmt.Errorf("plan %q: %w", plan.Name, verr))

			continue
		}

		fmt.Fprintf(cmd.Writer, "%s: ok (%d instruments, %d items)\n", plan.Name, len(plan.Instruments), countItems(plan.Items))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return cli.Exit("validation failed:\n"+err.Error(), 1)
	}

	return nil
}

func countItems(items []*config.ItemDecl) int {
	n := len(items)

	for _, it := range items {
		n += countItems(it.Items)
	}

	return n
}
