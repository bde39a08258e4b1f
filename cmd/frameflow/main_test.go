package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/user/frameflow/pkg/lut"
)

func TestParseROI(t *testing.T) {
	tests := []struct {
		in      string
		want    image.Rectangle
		wantErr bool
	}{
		{"10,20,30,40", image.Rect(10, 20, 40, 60), false},
		{" 0, 0, 5, 5 ", image.Rect(0, 0, 5, 5), false},
		{"1,2,3", image.Rectangle{}, true},
		{"a,b,c,d", image.Rectangle{}, true},
		{"0,0,0,5", image.Rectangle{}, true},
	}
	for _, tt := range tests {
		got, err := parseROI(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseROI(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseROI(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Asset", "Samples"}, [][]string{{"a.mp4", "120"}, {"b.mp4"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"Asset", "Samples", "a.mp4", "120", "b.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty table for no headers")
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.RunContext(context.Background(), append([]string{"frameflow"}, args...))
	return buf.String(), err
}

func TestLUTCommand(t *testing.T) {
	out, err := runApp(t, "lut", "--size", "3")
	if err != nil {
		t.Fatalf("lut failed: %v", err)
	}
	table, err := lut.ParseBytes([]byte(out))
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if table.Size != 3 || !table.IsIdentity() {
		t.Errorf("expected 3-point identity table, got size %d", table.Size)
	}

	path := filepath.Join(t.TempDir(), "id.cube")
	if _, err := runApp(t, "lut", "-o", path); err != nil {
		t.Fatalf("lut to file failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "LUT_3D_SIZE 33") {
		t.Error("expected default size 33")
	}

	if _, err := runApp(t, "lut", "--size", "1"); err == nil {
		t.Error("expected error for size 1")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("expected version %q in %q", version, out)
	}
}

func TestRenderRequiresProject(t *testing.T) {
	if _, err := runApp(t, "--quiet", "render"); err == nil {
		t.Error("expected error without --project")
	}
}

func TestExportLockedOutput(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "p.yaml")
	if err := os.WriteFile(project, []byte("fps: 30\nwidth: 16\nheight: 16\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.mp4")

	holder, err := runLock(out)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Unlock()

	_, err = runApp(t, "--quiet", "export", "-p", project, "-o", out)
	if err == nil || !strings.Contains(err.Error(), ErrLocked.Error()) {
		t.Errorf("expected lock error, got %v", err)
	}
}

func runLock(out string) (*flock.Flock, error) {
	l := flock.New(out + ".lock")
	ok, err := l.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("lock already held")
	}
	return l, nil
}
