package viewer

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/loader"
	"gcodeview/pkg/slicer"
)

// FileInfo describes a stored G-code file.
type FileInfo struct {
	Path     string  `json:"path"`
	Modified float64 `json:"modified"`
	Size     int64   `json:"size"`
	Slicer   string  `json:"slicer"`
}

// FileStore keeps G-code files under one directory. Names are slash
// separated and relative to the root.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.LoaderError(root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.LoaderError(root, err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute store directory.
func (s *FileStore) Root() string { return s.root }

// resolve maps name into the store, rejecting paths that leave it.
func (s *FileStore) resolve(name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(name, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", errors.Newf(errors.ErrLoader, "invalid file name %q", name)
	}
	return filepath.Join(s.root, rel), nil
}

// List returns every file in the store, sorted by path.
func (s *FileStore) List() ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := s.stat(path)
		if err != nil {
			return err
		}
		out = append(out, *info)
		return nil
	})
	if err != nil {
		return nil, errors.LoaderError(s.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Stat describes one stored file.
func (s *FileStore) Stat(name string) (*FileInfo, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := s.stat(path)
	if err != nil {
		return nil, errors.LoaderError(name, err)
	}
	return info, nil
}

func (s *FileStore) stat(path string) (*FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return nil, err
	}
	mod := fi.ModTime()
	return &FileInfo{
		Path:     filepath.ToSlash(rel),
		Modified: float64(mod.Unix()) + float64(mod.Nanosecond())/1e9,
		Size:     fi.Size(),
		Slicer:   detectFile(path).String(),
	}, nil
}

// detectFile sniffs the slicer from the head of path.
func detectFile(path string) slicer.Kind {
	f, err := os.Open(path)
	if err != nil {
		return slicer.Generic
	}
	defer f.Close()

	head := make([]byte, slicer.DetectWindow)
	n, _ := io.ReadFull(f, head)
	return slicer.Detect(string(head[:n]))
}

// Save writes r to name, replacing any existing file.
func (s *FileStore) Save(name string, r io.Reader) (*FileInfo, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.LoaderError(name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, errors.LoaderError(name, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.LoaderError(name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.LoaderError(name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.LoaderError(name, err)
	}
	return s.Stat(name)
}

// Open loads a stored file for parsing.
func (s *FileStore) Open(name string) (*loader.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return loader.Open(path)
}

// Delete removes a stored file.
func (s *FileStore) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.LoaderError(name, err)
	}
	return nil
}
