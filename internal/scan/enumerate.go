// Package scan walks a directory tree, classifies every file and folds the
// DICOM ones into a hierarchy.Builder.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
)

// ErrEnumeration marks failures that abort a whole scan.
var ErrEnumeration = errors.New("enumeration failed")

// EnumerationError reports that the scan root could not be traversed.
type EnumerationError struct {
	Root string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.Root, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEnumeration) true for every EnumerationError.
func (e *EnumerationError) Is(target error) bool { return target == ErrEnumeration }

// RawFile is a file discovered by Enumerate. Its bytes are read on demand.
type RawFile struct {
	Name string
	Path string
	Size int64

	fsys fs.FS
}

// Head reads at most n bytes from the start of the file.
func (f RawFile) Head(n int) ([]byte, error) {
	file, err := f.fsys.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// ReadAll reads the whole file.
func (f RawFile) ReadAll() ([]byte, error) {
	return fs.ReadFile(f.fsys, f.Path)
}

// EnumerateOptions controls Enumerate.
type EnumerateOptions struct {
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64

	// OnSkip, if set, is called for every file skipped by MaxFileSize.
	OnSkip func(RawFile)

	Logger *slog.Logger
}

// Enumerate walks root in lexical order and calls fn for every regular file.
// A root that cannot be read yields an *EnumerationError. Subdirectories that
// cannot be read are logged and skipped. An error returned by fn stops the
// walk and is returned as is.
func Enumerate(ctx context.Context, fsys fs.FS, root string, opts EnumerateOptions, fn func(RawFile) error) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return &EnumerationError{Root: root, Err: err}
			}
			logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("skipping file without info", "path", p, "error", err)
			return nil
		}
		f := RawFile{
			Name: path.Base(p),
			Path: p,
			Size: info.Size(),
			fsys: fsys,
		}
		if opts.MaxFileSize > 0 && f.Size > opts.MaxFileSize {
			logger.Debug("skipping large file", "path", p, "size", f.Size)
			if opts.OnSkip != nil {
				opts.OnSkip(f)
			}
			return nil
		}
		return fn(f)
	})
}

// Count returns the number of files Enumerate would yield.
func Count(ctx context.Context, fsys fs.FS, root string, opts EnumerateOptions) (int, error) {
	n := 0
	err := Enumerate(ctx, fsys, root, opts, func(RawFile) error {
		n++
		return nil
	})
	return n, err
}
