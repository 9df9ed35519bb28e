// Package loader reads G-code files for the processor. Large files are
// memory-mapped where the platform allows it.
package loader

import (
	"os"

	"gcodeview/pkg/errors"
)

// MapThreshold is the size from which Open maps a file instead of reading it.
const MapThreshold = 1 << 20

// File is the content of a loaded file. Close releases it; Bytes must not
// be used afterwards.
type File struct {
	path   string
	data   []byte
	mapped bool
}

// Bytes returns the file content. A mapped file is read-only.
func (f *File) Bytes() []byte { return f.data }

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// Mapped reports whether the content is memory-mapped.
func (f *File) Mapped() bool { return f.mapped }

// Size returns the content length in bytes.
func (f *File) Size() int { return len(f.data) }

// Close unmaps or drops the content.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	var err error
	if f.mapped {
		err = unmap(f.data)
	}
	f.data, f.mapped = nil, false
	if err != nil {
		return errors.LoaderError(f.path, err)
	}
	return nil
}

// Open loads path, mapping it when it is at least MapThreshold bytes and
// mapping is supported. Mapping failures fall back to a plain read.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.LoaderError(path, err)
	}
	defer fh.Close()

	fi, err := fh.Stat()
	if err != nil {
		return nil, errors.LoaderError(path, err)
	}
	if fi.IsDir() {
		return nil, errors.LoaderError(path, errors.New(errors.ErrLoader, "is a directory"))
	}

	if fi.Size() >= MapThreshold {
		if data, err := mmap(fh, fi.Size()); err == nil {
			return &File{path: path, data: data, mapped: true}, nil
		}
	}
	return read(path)
}

// ReadFile loads path without mapping.
func ReadFile(path string) (*File, error) {
	return read(path)
}

func read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LoaderError(path, err)
	}
	return &File{path: path, data: data}, nil
}
