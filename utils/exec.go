package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	ErrEmptyExecPath = errors.New("executable path is not defined")
	ErrNotExists     = errors.New("executable does not exist")
)

// CheckExecPath verifies that [execPath] names an existing file.
func CheckExecPath(execPath string) error {
	if execPath == "" {
		return ErrEmptyExecPath
	}
	if _, err := os.Stat(execPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrNotExists, execPath)
		}
		return fmt.Errorf("failed to stat exec %q (%w)", execPath, err)
	}
	return nil
}
