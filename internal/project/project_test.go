package project

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectUnknownForEmptyDir(t *testing.T) {
	dir := t.TempDir()
	d := Detect(dir)
	if d.Type != Unknown {
		t.Fatalf("expected Unknown, got %s", d.Type)
	}
}

func TestDetectRust(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Cargo.toml")
	d := Detect(dir)
	if d.Type != Rust {
		t.Fatalf("expected Rust, got %s", d.Type)
	}
}

func TestDetectJavaScriptWithoutTsconfig(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "package.json")
	d := Detect(dir)
	if d.Type != JavaScript {
		t.Fatalf("expected JavaScript, got %s", d.Type)
	}
}

func TestDetectTypeScriptWithTsconfig(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "package.json")
	touch(t, dir, "tsconfig.json")
	d := Detect(dir)
	if d.Type != TypeScript {
		t.Fatalf("expected TypeScript, got %s", d.Type)
	}
}

func TestDetectPythonByEitherMarker(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "requirements.txt")
	d := Detect(dir)
	if d.Type != Python {
		t.Fatalf("expected Python, got %s", d.Type)
	}
	if len(d.Markers) != 1 || d.Markers[0] != "requirements.txt" {
		t.Fatalf("expected single requirements.txt marker, got %v", d.Markers)
	}
}

func TestDetectPythonWithBothMarkers(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "pyproject.toml")
	touch(t, dir, "requirements.txt")
	d := Detect(dir)
	if d.Type != Python {
		t.Fatalf("expected Python, got %s", d.Type)
	}
	if len(d.Markers) != 2 {
		t.Fatalf("expected both markers recorded, got %v", d.Markers)
	}
}

func TestDetectGo(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	d := Detect(dir)
	if d.Type != Go {
		t.Fatalf("expected Go, got %s", d.Type)
	}
}

func TestDetectMixed(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	touch(t, dir, "package.json")
	d := Detect(dir)
	if d.Type != Mixed {
		t.Fatalf("expected Mixed, got %s", d.Type)
	}
	if len(d.Mixed) != 2 {
		t.Fatalf("expected 2 constituent detections, got %d", len(d.Mixed))
	}
}
