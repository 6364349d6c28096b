// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dropdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// Directory is an opened shared directory.
type Directory struct {
	path string
}

// Open returns the shared directory at path, creating it (and its
// parents) when missing.
func Open(path string) (*Directory, error) {
	if path == "" {
		return nil, errors.New("shared directory path is empty")
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving shared directory %s: %w", path, err)
	}
	if err := os.MkdirAll(absolute, 0o755); err != nil {
		return nil, fmt.Errorf("creating shared directory %s: %w", absolute, err)
	}
	return &Directory{path: absolute}, nil
}

// Path returns the absolute directory path.
func (d *Directory) Path() string { return d.path }

// Join returns the absolute path of name inside the directory.
func (d *Directory) Join(name string) string { return filepath.Join(d.path, name) }

// temporaryPattern is the os.CreateTemp pattern for name. The leading
// dot and the .tmp suffix keep the file out of every protocol listing.
func temporaryPattern(name string) string { return "." + name + ".*.tmp" }

// isTemporary matches files created from temporaryPattern.
func isTemporary(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// WriteFile writes data to name atomically. The file is readable by
// the peer host's user (mode 0644).
func (d *Directory) WriteFile(name string, data []byte) error {
	file, err := os.CreateTemp(d.path, temporaryPattern(name))
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", name, err)
	}
	temporaryPath := file.Name()

	// Write, chmod, sync, close, in that order. Any failure removes the
	// temporary file and reports the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := file.Chmod(0o644); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("setting mode of %s: %w", name, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(temporaryPath, d.Join(name)); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", name, err)
	}

	// Make the rename durable. Failure here does not undo the write.
	if directory, err := os.Open(d.path); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// ReadFile returns the content of name. A missing file yields an error
// wrapping fs.ErrNotExist.
func (d *Directory) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(d.Join(name))
}

// Exists reports whether name is present. Errors other than "does not
// exist" are returned.
func (d *Directory) Exists(name string) (bool, error) {
	_, err := os.Stat(d.Join(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Remove deletes name. A missing file is not an error.
func (d *Directory) Remove(name string) error {
	if err := os.Remove(d.Join(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// ClaimedFile is a request renamed to its .processing name by this
// process.
type ClaimedFile struct {
	// Name is the parsed name with SuffixProcessing.
	Name wire.Name

	// Path is the absolute path of the .processing file.
	Path string
}

// FileName returns the .processing file name.
func (c ClaimedFile) FileName() string { return c.Name.String() }

// Claim renames request to its .processing name. Returns
// ok=false with a nil error when the request no longer exists, which
// means another scan claimed it or the requester gave up and removed
// it.
func (d *Directory) Claim(request wire.Name) (ClaimedFile, bool, error) {
	if request.Suffix != wire.SuffixRequest {
		return ClaimedFile{}, false, fmt.Errorf("claiming %s: not a request file", request)
	}
	processing := request
	processing.Suffix = wire.SuffixProcessing

	source := d.Join(request.String())
	destination := d.Join(processing.String())
	if err := os.Rename(source, destination); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ClaimedFile{}, false, nil
		}
		return ClaimedFile{}, false, fmt.Errorf("claiming %s: %w", request, err)
	}
	return ClaimedFile{Name: processing, Path: destination}, true, nil
}

// List returns the protocol files of kind with suffix, in directory
// order (sorted by file name). Entries that are not protocol files are
// skipped.
func (d *Directory) List(kind wire.Kind, suffix string) ([]wire.Name, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.path, err)
	}
	prefix := string(kind) + "_"
	var names []wire.Name
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(fileName, prefix) || !strings.HasSuffix(fileName, suffix) {
			continue
		}
		name, err := wire.ParseFileName(fileName)
		if err != nil || name.Kind != kind || name.Suffix != suffix {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Glob returns the names of regular files matching pattern, sorted.
// Pattern syntax is filepath.Match's.
func (d *Directory) Glob(pattern string) ([]string, error) {
	if strings.ContainsRune(pattern, filepath.Separator) {
		return nil, fmt.Errorf("glob pattern %q must not contain a separator", pattern)
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.path, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match(pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("glob pattern %q: %w", pattern, err)
		}
		if matched {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// SweepReport counts what Sweep removed.
type SweepReport struct {
	Requests   int
	Processing int
	Temporary  int

	// Failed lists files that could not be removed.
	Failed []string
}

// StaleTemporaryAge is how old a temporary file must be before Sweep
// removes it. Younger ones may belong to a peer writing right now.
const StaleTemporaryAge = time.Minute

// Sweep removes every request, every orphaned .processing file and
// every temporary file last modified more than StaleTemporaryAge ago.
// Responses are kept: a requester may still be polling for one written
// just before the previous responder exited.
//
// Individual removal failures are collected in the report; only a
// failure to list the directory is returned as an error.
func (d *Directory) Sweep() (SweepReport, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return SweepReport{}, fmt.Errorf("listing %s: %w", d.path, err)
	}

	var report SweepReport
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()

		var counter *int
		if isTemporary(fileName) {
			info, err := entry.Info()
			if err != nil || time.Since(info.ModTime()) < StaleTemporaryAge {
				continue
			}
			counter = &report.Temporary
		} else if name, err := wire.ParseFileName(fileName); err == nil {
			switch name.Suffix {
			case wire.SuffixRequest:
				counter = &report.Requests
			case wire.SuffixProcessing:
				counter = &report.Processing
			}
		}
		if counter == nil {
			continue
		}

		if err := d.Remove(fileName); err != nil {
			report.Failed = append(report.Failed, fileName)
			continue
		}
		*counter++
	}
	return report, nil
}
