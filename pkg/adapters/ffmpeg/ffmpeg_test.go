package ffmpeg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFind_CustomPath(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	SetPath(fake)
	defer SetPath("")

	got, err := Find()
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got != fake {
		t.Errorf("expected %s, got %s", fake, got)
	}
}

func TestFind_MissingCustomPath(t *testing.T) {
	SetPath(filepath.Join(t.TempDir(), "missing"))
	defer SetPath("")

	if _, err := Find(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if Available() {
		t.Error("expected ffmpeg to be unavailable")
	}
}

func TestFind_EnvPath(t *testing.T) {
	t.Setenv("FFMPEG_PATH", filepath.Join(t.TempDir(), "missing"))
	if _, err := Find(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
