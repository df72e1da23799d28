// Package disk performs the on-disk side of every mutation: directory
// creation, atomic file writes, subtree removal and the collision probe
// that picks a free upload name. Metadata (the node records) is handled
// separately by the postgres store; callers keep the two in step.
package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/archivist/archivist/internal/domain"
)

// Disk is rooted at the files directory. All paths passed in are
// absolute and already containment-checked by the caller.
type Disk struct {
	root string
}

// New ensures the files root exists and returns a Disk anchored there.
func New(root string) (*Disk, error) {
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat root %s: %w", root, err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create root %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	return &Disk{root: root}, nil
}

// Root returns the absolute files root.
func (d *Disk) Root() string { return d.root }

// MakeDir creates a single directory. An occupied path surfaces as
// ErrAlreadyExists; any other failure is a disk fault.
func (d *Disk) MakeDir(abs string) error {
	if err := os.Mkdir(abs, 0755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("mkdir %s: %w", abs, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("mkdir %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	return nil
}

// WriteFile writes body to abs atomically (temp file + rename) and
// returns the byte count.
func (d *Disk) WriteFile(abs string, body io.Reader) (int64, error) {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, ".archivist-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp for %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close temp for %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename temp to %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	return n, nil
}

// Open opens a file for reading, returning its size alongside.
func (d *Disk) Open(abs string) (io.ReadCloser, int64, error) {
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("open %s: %w", abs, domain.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	return f, info.Size(), nil
}

// Remove deletes the entity at abs: a recursive removal for folders, a
// single unlink for files. An already-missing path is not an error —
// the store is the source of truth for presence, the disk is best
// effort.
func (d *Disk) Remove(abs string, isFolder bool) error {
	var err error
	if isFolder {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
		if os.IsNotExist(err) {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("remove %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	return nil
}

// Exists reports whether anything sits at abs.
func (d *Disk) Exists(abs string) (bool, error) {
	_, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s (%v): %w", abs, err, domain.ErrDiskUnavailable)
	}
	return true, nil
}

// UniqueName returns the first free file name for name inside dir,
// appending _1, _2, ... before the extension until nothing occupies the
// candidate. Deterministic for a fixed directory listing.
func (d *Disk) UniqueName(dir, name string) (string, error) {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		occupied, err := d.Exists(filepath.Join(dir, candidate))
		if err != nil {
			return "", err
		}
		if !occupied {
			return candidate, nil
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
}
