// Package project loads declarative simulation projects: a model file
// naming the blocks and their connections, and a parameters file with
// the simulation settings and per-block numeric parameters. Documents
// are validated against an embedded CUE schema before anything is
// constructed.
package project

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blockstep/blockstep/internal/blocks"
	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/sim"
)

// BlockDecl is one block entry in the model file.
type BlockDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Category mirrors the palette grouping in authoring tools. The
	// loader resolves blocks by type alone.
	Category   string         `yaml:"category,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
}

// ModelFile is the decoded model document.
type ModelFile struct {
	Name        string      `yaml:"name,omitempty"`
	Blocks      []BlockDecl `yaml:"blocks"`
	Connections [][]string  `yaml:"connections"`
}

// ParametersFile is the decoded parameters document.
type ParametersFile struct {
	Simulation SimulationSection         `yaml:"simulation"`
	Logging    []string                  `yaml:"logging,omitempty"`
	Blocks     map[string]map[string]any `yaml:"blocks,omitempty"`
}

// SimulationSection holds the simulation settings. T is the horizon.
type SimulationSection struct {
	DT     float64 `yaml:"dt"`
	T      float64 `yaml:"T"`
	T0     float64 `yaml:"t0"`
	Solver string  `yaml:"solver,omitempty"`
	Clock  string  `yaml:"clock,omitempty"`
}

// Project is a fully loaded and validated project, ready to simulate.
type Project struct {
	Model  *model.Model
	Config sim.Config
}

// LoadModelFile reads and validates the model document.
func LoadModelFile(path string) (*ModelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	if err := validateDocument(data, "#ModelFile"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var mf ModelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decoding model file: %w", err)
	}
	return &mf, nil
}

// LoadParametersFile reads and validates the parameters document.
func LoadParametersFile(path string) (*ParametersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters file: %w", err)
	}
	if err := validateDocument(data, "#ParametersFile"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var pf ParametersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decoding parameters file: %w", err)
	}
	return &pf, nil
}

// Load reads both documents and assembles the model and simulation
// config. Per-block parameters come from the parameters file, or
// inline from the model file; a block may not use both.
func Load(modelPath, paramsPath string) (*Project, error) {
	mf, err := LoadModelFile(modelPath)
	if err != nil {
		return nil, err
	}
	pf, err := LoadParametersFile(paramsPath)
	if err != nil {
		return nil, err
	}
	return Assemble(mf, pf)
}

// Assemble builds a project from already decoded documents.
func Assemble(mf *ModelFile, pf *ParametersFile) (*Project, error) {
	if len(mf.Blocks) == 0 {
		return nil, fmt.Errorf("model defines no blocks")
	}

	name := mf.Name
	if name == "" {
		name = "model"
	}
	m := model.New(name)
	for _, decl := range mf.Blocks {
		params, err := blockParams(decl, pf)
		if err != nil {
			return nil, err
		}
		blk, err := blocks.New(decl.Type, decl.Name, params)
		if err != nil {
			return nil, fmt.Errorf("building block '%s': %w", decl.Name, err)
		}
		if err := m.AddBlock(blk); err != nil {
			return nil, err
		}
	}

	for _, pair := range mf.Connections {
		if len(pair) != 2 {
			return nil, fmt.Errorf("connection %v must be a [source, destination] pair", pair)
		}
		srcBlock, srcPort, err := splitEndpoint(pair[0])
		if err != nil {
			return nil, err
		}
		dstBlock, dstPort, err := splitEndpoint(pair[1])
		if err != nil {
			return nil, err
		}
		if err := m.Connect(srcBlock, srcPort, dstBlock, dstPort); err != nil {
			return nil, err
		}
	}

	cfg := sim.Config{
		DT:      pf.Simulation.DT,
		T0:      pf.Simulation.T0,
		Horizon: pf.Simulation.T,
		Solver:  pf.Simulation.Solver,
		Clock:   pf.Simulation.Clock,
		Logging: append([]string(nil), pf.Logging...),
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Project{Model: m, Config: cfg}, nil
}

// blockParams resolves a block's parameters. Inline parameters in the
// model file and an entry in the parameters file are mutually
// exclusive, so projects keep a single source of truth per block.
func blockParams(decl BlockDecl, pf *ParametersFile) (blocks.Params, error) {
	fromFile, inParamsFile := pf.Blocks[decl.Name]
	if decl.Parameters != nil && inParamsFile {
		return nil, fmt.Errorf("block '%s' has inline parameters and a parameters-file entry: use exactly one", decl.Name)
	}
	if decl.Parameters != nil {
		return blocks.Params(decl.Parameters), nil
	}
	return blocks.Params(fromFile), nil
}

func splitEndpoint(s string) (block, port string, err error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("endpoint '%s' must have the form 'block.port'", s)
	}
	return parts[0], parts[1], nil
}
