// Package simconfig loads a cell configuration for cmd/enb-sched-sim from a
// YAML file, in the flat-struct-from-text-file pattern
// doismellburning-samoyed's src/config.go uses for direwolf.conf (one
// section per subsystem, defaults filled in for anything absent).
//
// The RRC/PHY supplied cell configuration is an external collaborator per
// spec.md §1; a standalone driver still needs to get one from somewhere,
// and YAML is how the comparable daemon in the example pack does it.
package simconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SibEntry mirrors one row of the cell's SIB table (spec.md §3).
type SibEntry struct {
	Len      int `yaml:"len"`
	PeriodRF int `yaml:"period_rf"`
}

// Cell is the on-disk shape of a cell configuration.
type Cell struct {
	NofPRB          int        `yaml:"nof_prb"`
	NofAntennaPorts int        `yaml:"nof_antenna_ports"`
	SiWindowMs      int        `yaml:"si_window_ms"`
	PrachRarWindow  int        `yaml:"prach_rar_window"`
	MaxHarqMsg3Tx   int        `yaml:"max_harq_msg3_tx"`
	Sibs            []SibEntry `yaml:"sibs"`
}

// Default returns a cell configuration usable out of the box: a 50-PRB
// cell with a single SIB1 table entry, matching spec.md §8 scenario S1.
func Default() Cell {
	return Cell{
		NofPRB:          50,
		NofAntennaPorts: 1,
		SiWindowMs:      16,
		PrachRarWindow:  10,
		MaxHarqMsg3Tx:   5,
		Sibs: []SibEntry{
			{Len: 18, PeriodRF: 8},
		},
	}
}

// Load reads a Cell from a YAML file at path. A missing file is not an
// error: the caller gets Default() back, since a synthetic driver should
// run with no config at all (same spirit as direwolf falling back to
// built-in defaults when direwolf.conf is absent).
func Load(path string) (Cell, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Cell{}, fmt.Errorf("simconfig: read %s: %w", path, err)
	}
	cell := Default()
	if err := yaml.Unmarshal(data, &cell); err != nil {
		return Cell{}, fmt.Errorf("simconfig: parse %s: %w", path, err)
	}
	return cell, nil
}
