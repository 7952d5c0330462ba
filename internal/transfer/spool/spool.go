package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by Stage when the incoming stream exceeds the
// byte limit. The partially written file is removed before returning.
var ErrTooLarge = errors.New("stream exceeds the configured byte limit")

// Spool stages uploads and publishes download artifacts under one root
// directory. Paths handed out by Stage and Publish are ephemeral: they are
// valid until the owning upload is superseded or the session is evicted.
type Spool struct {
	root string
}

// New ensures the root directory exists and returns a Spool over it.
// An empty root falls back to the system temp directory.
func New(root string) (*Spool, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "tabpipe")
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create spool root: %w", err)
	}

	return &Spool{root: root}, nil
}

// Root returns the spool root directory.
func (s *Spool) Root() string {
	return s.root
}

// Stage copies r into a server-chosen temp file, enforcing limit bytes.
// The caller never picks the path. On any error, including ErrTooLarge,
// nothing is left behind on disk.
func (s *Spool) Stage(r io.Reader, limit int64) (string, int64, error) {
	f, err := os.CreateTemp(s.root, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging file: %w", err)
	}

	// Read one byte past the limit so an over-sized stream is detected
	// even when the declared size lied.
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("stage upload: %w", err)
	}
	if n > limit {
		_ = os.Remove(f.Name())
		return "", 0, ErrTooLarge
	}

	return f.Name(), n, nil
}

// Open opens a previously staged or published file for reading.
func (s *Spool) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes a spool file. Missing files are not an error; a cleanup
// retry may race a supersede that already removed the path.
func (s *Spool) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Publish runs write against a scratch file and atomically renames it into
// its final name once write returns successfully. A failing write never
// leaves a visible artifact.
func (s *Spool) Publish(write func(w io.Writer) error) (string, error) {
	scratch, err := os.CreateTemp(s.root, "artifact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}

	if err := write(scratch); err != nil {
		_ = scratch.Close()
		_ = os.Remove(scratch.Name())
		return "", err
	}

	if err := scratch.Close(); err != nil {
		_ = os.Remove(scratch.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}

	final := scratch.Name()[:len(scratch.Name())-len(".tmp")]
	if err := os.Rename(scratch.Name(), final); err != nil {
		_ = os.Remove(scratch.Name())
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	return final, nil
}
