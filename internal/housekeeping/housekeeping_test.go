package housekeeping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/eventbus"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRoots(t *testing.T) (*config.EffectiveConfig, config.RootMapping) {
	t.Helper()
	root := t.TempDir()
	m := config.RootMapping{
		Input:  root,
		Output: filepath.Join(root, "_out"),
		Error:  filepath.Join(root, "_err"),
	}
	return &config.EffectiveConfig{
		Roots:             []config.RootMapping{m},
		ErrorMarkerThresh: 100,
	}, m
}

func TestPreRunCountsMarkersAndSweepsTemps(t *testing.T) {
	cfg, m := testRoots(t)
	write(t, filepath.Join(m.Output, "a.err"), "failed")
	write(t, filepath.Join(m.Output, "sub", "b.err"), "failed")
	write(t, filepath.Join(m.Output, "partial.mp4.tmp"), "junk")

	h := New(cfg, eventbus.New())
	markers, err := h.PreRun()
	if err != nil {
		t.Fatal(err)
	}
	if markers != 2 {
		t.Fatalf("expected 2 markers counted, got %d", markers)
	}
	if _, err := os.Stat(filepath.Join(m.Output, "a.err")); err != nil {
		t.Fatal("markers must survive when clean-errors is off")
	}
	if _, err := os.Stat(filepath.Join(m.Output, "partial.mp4.tmp")); !os.IsNotExist(err) {
		t.Fatal("stale temp files must be swept")
	}
}

func TestPreRunCleanErrorsSweepsMarkers(t *testing.T) {
	cfg, m := testRoots(t)
	cfg.CleanErrors = true
	write(t, filepath.Join(m.Output, "a.err"), "failed")

	h := New(cfg, eventbus.New())
	markers, err := h.PreRun()
	if err != nil {
		t.Fatal(err)
	}
	if markers != 0 {
		t.Fatalf("swept markers must not be counted, got %d", markers)
	}
	if _, err := os.Stat(filepath.Join(m.Output, "a.err")); !os.IsNotExist(err) {
		t.Fatal("clean-errors must remove the marker")
	}
}

func TestPostRunRelocatesSourceAndMarker(t *testing.T) {
	cfg, m := testRoots(t)
	write(t, filepath.Join(m.Input, "trip", "clip.mp4"), "source-bytes")
	write(t, filepath.Join(m.Output, "trip", "clip.err"), "corrupted")

	h := New(cfg, eventbus.New())
	if err := h.PostRun(false); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(m.Error, "trip", "clip.err")); err != nil {
		t.Fatal("marker must move under the error root")
	}
	if _, err := os.Stat(filepath.Join(m.Error, "trip", "clip.mp4")); err != nil {
		t.Fatal("source must move under the error root, preserving the relative path")
	}
	if _, err := os.Stat(filepath.Join(m.Input, "trip", "clip.mp4")); !os.IsNotExist(err) {
		t.Fatal("source must be moved, not copied")
	}
}

func TestPostRunThresholdNonInteractiveDoesNothing(t *testing.T) {
	cfg, m := testRoots(t)
	cfg.ErrorMarkerThresh = 1
	write(t, filepath.Join(m.Input, "a.mp4"), "x")
	write(t, filepath.Join(m.Input, "b.mp4"), "x")
	write(t, filepath.Join(m.Output, "a.err"), "failed")
	write(t, filepath.Join(m.Output, "b.err"), "failed")

	h := New(cfg, eventbus.New())
	if err := h.PostRun(false); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(m.Output, "a.err")); err != nil {
		t.Fatal("above the threshold, a non-interactive run must leave everything in place")
	}
	if _, err := os.Stat(filepath.Join(m.Input, "a.mp4")); err != nil {
		t.Fatal("sources must stay put without confirmation")
	}
}
