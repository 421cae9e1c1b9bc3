package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/steam-review-ingest/internal/testutil"
	"github.com/Sternrassler/steam-review-ingest/pkg/config"
	"github.com/Sternrassler/steam-review-ingest/pkg/output"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

func TestRun(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	day := testutil.Day(2024, 5, 1)
	feed.SetPages(3, []review.RawEntry{
		testutil.Entry("1", day, "one"),
		testutil.Entry("2", day, "two"),
		testutil.Entry("3", day, "three"),
	})

	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "ingest.yaml")
	body := "feed:\n  base_url: " + feed.URL() + "\n  requests_per_second: 0\n  retry_attempts: 1\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	code := run(context.Background(), []string{
		"-config", cfgPath,
		"-output-dir", dir,
		"-per-batch", "2",
		"-log-level", "error",
		"1382330",
	})
	if code != exitOK {
		t.Fatalf("run() = %d, want %d", code, exitOK)
	}

	for i, want := range []int{2, 1} {
		records, err := output.ReadFile(filepath.Join(dir, output.FileName("1382330", i)))
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if len(records) != want {
			t.Errorf("file %d has %d records, want %d", i, len(records), want)
		}
	}
}

func TestRun_ExitCodes(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	feed.QueueStatus(404)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "help", args: []string{"-h"}, want: exitOK},
		{name: "unknown flag", args: []string{"-nope"}, want: exitUsage},
		{name: "missing app id", args: []string{"-log-level", "error"}, want: exitUsage},
		{name: "bad log level", args: []string{"-log-level", "loud", "1"}, want: exitUsage},
		{name: "lookback", args: []string{"-log-level", "error", "-min-date", "2000-01-01", "1"}, want: exitUsage},
		{
			name: "feed failure",
			args: []string{"-log-level", "error", "-output-dir", t.TempDir(), "-retry-attempts", "1", "-rps", "0", "1"},
			want: exitFailed,
		},
	}

	t.Setenv(config.ConfigPathEnv, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.want == exitFailed {
				cfgPath := filepath.Join(t.TempDir(), "ingest.yaml")
				if err := os.WriteFile(cfgPath, []byte("feed:\n  base_url: "+feed.URL()+"\n"), 0o644); err != nil {
					t.Fatalf("WriteFile() error = %v", err)
				}
				args = append([]string{"-config", cfgPath}, args...)
			}
			if got := run(context.Background(), args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", args, got, tt.want)
			}
		})
	}
}

func TestBuildSinks_None(t *testing.T) {
	sinks, err := buildSinks(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("buildSinks() error = %v", err)
	}
	if len(sinks) != 0 {
		t.Errorf("sinks = %d, want 0", len(sinks))
	}
}
