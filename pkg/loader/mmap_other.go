//go:build !linux && !darwin

package loader

import (
	"os"

	"gcodeview/pkg/errors"
)

func mmap(*os.File, int64) ([]byte, error) {
	return nil, errors.New(errors.ErrLoader, "memory mapping not supported")
}

func unmap([]byte) error { return nil }
