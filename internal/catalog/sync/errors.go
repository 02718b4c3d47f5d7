package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRoot is returned when the root path is missing or not a
	// directory. No catalog access happens in that case.
	ErrInvalidRoot = errors.New("invalid root directory")

	// ErrStore wraps failures of the catalog store. A run that hits it is
	// aborted; entries not yet processed keep their previous state.
	ErrStore = errors.New("catalog store error")
)

// FolderError records a filesystem failure while processing one folder.
type FolderError struct {
	Name string // folder base name
	Op   string // what was being done ("stat thumbnail", "copy thumbnail", ...)
	Err  error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %q: %s: %v", e.Name, e.Op, e.Err)
}

func (e *FolderError) Unwrap() error {
	return e.Err
}
