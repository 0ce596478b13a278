// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"chatty", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)

	if err := Configure("warn"); err != nil {
		t.Fatal(err)
	}
	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Error("shown", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below level were written: %q", out)
	}
	if !strings.Contains(out, "[WARN]  shown 3") || !strings.Contains(out, "[ERROR] shown4") {
		t.Errorf("missing messages: %q", out)
	}
}

func TestConfigureUnknownLevel(t *testing.T) {
	captureOutput(t)
	if err := Configure("nope"); err == nil {
		t.Error("expected error")
	}
	if GetLevel() != LevelInfo {
		t.Errorf("level = %v, want INFO", GetLevel())
	}
}
