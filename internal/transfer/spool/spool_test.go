package spool

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageWithinLimit(t *testing.T) {
	t.Parallel()

	sp, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, size, err := sp.Stage(strings.NewReader("a,b\n1,2\n"), 64)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if size != 8 {
		t.Fatalf("unexpected size: %d", size)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("unexpected staged content: %q", data)
	}
}

func TestStageRejectsOversizedStream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sp, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = sp.Stage(strings.NewReader(strings.Repeat("x", 100)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}

func TestPublishAtomicOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sp, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = sp.Publish(func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("serialization failed")
	})
	if err == nil {
		t.Fatal("expected error from Publish")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no visible artifact, found %d entries", len(entries))
	}
}

func TestPublishThenOpen(t *testing.T) {
	t.Parallel()

	sp, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := sp.Publish(func(w io.Writer) error {
		_, err := w.Write([]byte("x,y\n"))
		return err
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if filepath.Ext(path) == ".tmp" {
		t.Fatalf("published path still has scratch suffix: %q", path)
	}

	f, err := sp.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read published file: %v", err)
	}
	if string(data) != "x,y\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestRemoveMissingFileIsNoError(t *testing.T) {
	t.Parallel()

	sp, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sp.Remove(filepath.Join(sp.Root(), "gone")); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if err := sp.Remove(""); err != nil {
		t.Fatalf("Remove empty path: %v", err)
	}
}
