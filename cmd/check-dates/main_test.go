package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBatch(t *testing.T, dir, name string, dates ...string) string {
	t.Helper()
	var parts []string
	for _, d := range dates {
		parts = append(parts, `{"date": "`+d+`"}`)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("["+strings.Join(parts, ",")+"]"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	good := writeBatch(t, dir, "1.0.json", "2024-06-01", "2024-06-10")
	bad := writeBatch(t, dir, "1.1.json", "2024-05-31", "2024-06-05", "2024-06-11")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  []string
	}{
		{name: "inside", args: []string{"2024-06-01", "2024-06-10", good}, wantCode: 0},
		{
			name:     "outside",
			args:     []string{"2024-06-01", "2024-06-10", good, bad},
			wantCode: 1,
			wantOut:  []string{bad + ": Bad date: 2024-05-31", bad + ": Bad date: 2024-06-11"},
		},
		{name: "usage", args: []string{"2024-06-01"}, wantCode: 2},
		{name: "bad min", args: []string{"June", "2024-06-10", good}, wantCode: 2},
		{name: "missing file", args: []string{"2024-06-01", "2024-06-10", filepath.Join(dir, "nope.json")}, wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Errorf("run() = %d, want %d (stderr %q)", code, tt.wantCode, stderr.String())
			}
			lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
			if len(tt.wantOut) == 0 {
				if stdout.Len() != 0 {
					t.Errorf("unexpected output %q", stdout.String())
				}
				return
			}
			if strings.Join(lines, "\n") != strings.Join(tt.wantOut, "\n") {
				t.Errorf("output = %q, want %q", lines, tt.wantOut)
			}
		})
	}
}
