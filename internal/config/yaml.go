// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/oscilla-lab/scantree/internal/instrumentregistry"
)

// ErrInvalidYAML is returned when a plan file cannot be parsed as YAML.
var ErrInvalidYAML = errors.New("invalid YAML")

type yamlPlan struct {
	Name        string            `yaml:"name"`
	Metadata    map[string]string `yaml:"metadata"`
	Instruments []yamlInstrument  `yaml:"instruments"`
	Items       []*yamlItem       `yaml:"items"`
}

type yamlInstrument struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Name     string         `yaml:"name"`
	Adapter  string         `yaml:"adapter"`
	Settings map[string]any `yaml:"settings"`
}

type yamlItem struct {
	Name       string      `yaml:"name"`
	Instrument string      `yaml:"instrument"`
	Semaphore  string      `yaml:"semaphore"`
	Positions  []float64   `yaml:"positions"`
	Checked    bool        `yaml:"checked"`
	Items      []*yamlItem `yaml:"items"`
}

// ParseYAML decodes one plan from YAML text.
func ParseYAML(data []byte) (*Plan, error) {
	var yp yamlPlan
	if err := yaml.Unmarshal(data, &yp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	plan := &Plan{
		Name:     yp.Name,
		Metadata: yp.Metadata,
	}

	for _, yi := range yp.Instruments {
		plan.Instruments = append(plan.Instruments, InstrumentDecl{
			ID: yi.ID,
			Definition: instrumentregistry.Definition{
				Type:     yi.Type,
				Name:     yi.Name,
				Adapter:  yi.Adapter,
				Settings: yi.Settings,
			},
		})
	}

	for _, yi := range yp.Items {
		plan.Items = append(plan.Items, convertYAMLItem(yi))
	}

	return plan, nil
}

func convertYAMLItem(yi *yamlItem) *ItemDecl {
	decl := &ItemDecl{
		Name:       yi.Name,
		Instrument: yi.Instrument,
		Semaphore:  yi.Semaphore,
		Positions:  yi.Positions,
		Checked:    yi.Checked,
	}

	for _, child := range yi.Items {
		decl.Items = append(decl.Items, convertYAMLItem(child))
	}

	return decl
}
