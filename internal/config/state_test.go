// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"musicviz/internal/analysis"
)

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	want := analysis.State{
		Mode:         analysis.ModeWave,
		MaxAmplitude: 0.42,
		Smoothed:     []float32{0, 1.5, 2.25},
		Shadow:       []float32{0.5, 1.75, 2.25},
		Wave:         []float32{-0.25, 0.125},
	}
	if err := SaveStateFile(path, want); err != nil {
		t.Fatalf("SaveStateFile: %v", err)
	}

	got, err := LoadStateFile(path)
	if err != nil {
		t.Fatalf("LoadStateFile: %v", err)
	}
	if got.Mode != want.Mode || got.MaxAmplitude != want.MaxAmplitude {
		t.Errorf("got mode %v peak %f, want %v %f", got.Mode, got.MaxAmplitude, want.Mode, want.MaxAmplitude)
	}
	if !slices.Equal(got.Smoothed, want.Smoothed) ||
		!slices.Equal(got.Shadow, want.Shadow) ||
		!slices.Equal(got.Wave, want.Wave) {
		t.Errorf("series = %+v, want %+v", got, want)
	}
}

func TestLoadStateFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadStateFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: err = %v, want fs.ErrNotExist", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("mode: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStateFile(bad); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSaveStateFileBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "state.yaml")
	if err := SaveStateFile(path, analysis.State{}); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
