// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package show

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TylerBrock/colorjson"
	"github.com/urfave/cli/v3"

	"github.com/oscilla-lab/scantree/internal/config"
	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

const (
	fileArg  = "file"
	jsonFlag = "json"

	jsonIndent = 2
)

// ErrRenderTree is returned when the scan tree cannot be rendered.
var ErrRenderTree = errors.New("failed to render scan tree")

// ShowCmd is the command that prints the scan tree a plan file describes.
var ShowCmd = &cli.Command{
	Name:        "show",
	Description: "Show the scan tree described by a plan file without running it.",
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
		&cli.BoolFlag{
			Name:        jsonFlag,
			Usage:       "Print the serialized scan tree as JSON instead of the tree view",
			Value:       false,
			DefaultText: "false",
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	fileName := cmd.StringArg(fileArg)
	if fileName == "" {
		return cli.Exit("Please provide a plan file to show", 1)
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

	if cmd.Bool(jsonFlag) {
		state, err := root.Serialize()
		if err != nil {
			return errors.Join(ErrRenderTree, err)
		}

		// colorjson wants plain JSON types, so normalize through a
		// marshal/unmarshal round trip first.
		raw, err := json.Marshal(state)
		if err != nil {
			return errors.Join(ErrRenderTree, err)
		}

		var plain map[string]any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return errors.Join(ErrRenderTree, err)
		}

		formatter := colorjson.NewFormatter()
		formatter.Indent = jsonIndent

		out, err := formatter.Marshal(plain)
		if err != nil {
			return errors.Join(ErrRenderTree, err)
		}

		fmt.Fprintln(cmd.Writer, string(out))

		return nil
	}

	var b strings.Builder

	renderItem(&b, root, "", true)
	fmt.Fprint(cmd.Writer, b.String())

	return nil
}

// renderItem writes one tree row and recurses into children.
func renderItem(b *strings.Builder, item *scantree.Item, prefix string, isLast bool) {
	connector := "├── "
	childPrefix := prefix + "│   "

	if isLast {
		connector = "└── "
		childPrefix = prefix + "    "
	}

	if item.Parent() == nil {
		connector = ""
		childPrefix = ""
	}

	b.WriteString(prefix + connector + describeItem(item) + "\n")

	children := item.Children()
	for i, child := range children {
		renderItem(b, child, childPrefix, i == len(children)-1)
	}
}

func describeItem(item *scantree.Item) string {
	desc := item.Name()

	if binding := item.Binding(); binding != nil {
		switch binding.Capability {
		case instrument.CapabilityMovement:
			desc += fmt.Sprintf(" [movement, %d positions]", len(binding.Positions))
		case instrument.CapabilityMeasurement:
			desc += " [measurement]"
		}
	}

	if sem := item.Semaphore(); sem != "" {
		desc += fmt.Sprintf(" (semaphore: %s)", sem)
	}

	if !item.IsChecked() {
		desc += " (unchecked)"
	}

	return desc
}
