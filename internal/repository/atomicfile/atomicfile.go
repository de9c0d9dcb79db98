package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Pending is a fully written and synced temp file waiting to replace its target.
type Pending struct {
	file   *renameio.PendingFile
	target string
	done   bool
}

// Stage writes src into a temp file next to target and fsyncs it.
// The target is untouched until Commit.
func Stage(target string, src io.WriterTo) (*Pending, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}

	f, err := renameio.TempFile(dir, target)
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", target, err)
	}

	if _, err := src.WriteTo(f); err != nil {
		_ = f.Cleanup()
		return nil, fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Cleanup()
		return nil, fmt.Errorf("sync %s: %w", f.Name(), err)
	}

	return &Pending{file: f, target: target}, nil
}

// Commit renames the temp file over the target and syncs the directory.
func (p *Pending) Commit() error {
	if p.done {
		return errors.New("atomicfile: already finished")
	}
	if err := p.file.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", p.target, err)
	}
	p.done = true
	syncDir(filepath.Dir(p.target))
	return nil
}

// Abort removes the temp file. Safe after Commit.
func (p *Pending) Abort() {
	if p.done {
		return
	}
	p.done = true
	_ = p.file.Cleanup()
}

// WriteFile atomically replaces target with the content of src.
func WriteFile(target string, src io.WriterTo) error {
	p, err := Stage(target, src)
	if err != nil {
		return err
	}
	if err := p.Commit(); err != nil {
		p.Abort()
		return err
	}
	return nil
}

// best effort; not every platform can fsync a directory
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
