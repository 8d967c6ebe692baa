// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/oscilla-lab/scantree/internal/ctxlog"
)

// Fs is the filesystem plan files are read from. Tests replace it with an
// in-memory filesystem.
var Fs = afero.NewOsFs()

// ErrUnsupportedFormat is returned for plan files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported plan format")

// Load reads and parses one plan file, dispatching on its extension:
// .yaml/.yml or .hcl.
func Load(ctx context.Context, path string) (*Plan, error) {
	data, err := afero.ReadFile(Fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %q: %w", path, err)
	}

	ctxlog.Debug(ctx, "loaded plan file", "path", path, "bytes", len(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".hcl":
		return ParseHCL(filepath.Base(path), data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadDir loads every plan file in a directory, in name order. Parse and
// validation problems are collected across files, so one bad plan does not
// mask another.
func LoadDir(ctx context.Context, dir string) ([]*Plan, error) {
	entries, err := afero.ReadDir(Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("reading plan directory %q: %w", dir, err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".hcl":
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	var (
		plans []*Plan
		merr  *multierror.Error
	)

	for _, name := range names {
		plan, err := Load(ctx, filepath.Join(dir, name))
		if err != nil {
			merr = multierror.Append(merr, err)

			continue
		}

		plans = append(plans, plan)
	}

	return plans, merr.ErrorOrNil()
}
