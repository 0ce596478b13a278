// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"

	"musicviz/internal/analysis"

	"gopkg.in/yaml.v3"
)

// SaveStateFile writes an analyzer snapshot to path as YAML, so a later
// run can resume from it with --state.
func SaveStateFile(path string, s analysis.State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", path, err)
	}
	return nil
}

// LoadStateFile reads a snapshot written by SaveStateFile. A missing file
// wraps fs.ErrNotExist.
func LoadStateFile(path string) (analysis.State, error) {
	var s analysis.State
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return s, nil
}
