package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "1.0.json")
	b := filepath.Join(dir, "1.1.json")
	if err := os.WriteFile(a, []byte(`[{"id": "x"}, {"id": "y"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{a, b}, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr %q", code, stderr.String())
	}

	want := a + "\t: 2\n" + b + "\t: 0\ntotal\t: 2\n"
	if stdout.String() != want {
		t.Errorf("output = %q, want %q", stdout.String(), want)
	}
}

func TestRun_NotABatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	if err := os.WriteFile(path, []byte(`{"id": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{path}, &stdout, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if stderr.Len() == 0 {
		t.Error("expected an error message")
	}
}

func TestRun_NoFiles(t *testing.T) {
	var stdout, stderr bytes.Buffer
	run(nil, &stdout, &stderr)
	if stdout.String() != "total\t: 0\n" {
		t.Errorf("output = %q", stdout.String())
	}
}
