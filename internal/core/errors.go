package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModuleNotFound       = errors.New("module not found")
	ErrUnreadableFile       = errors.New("unreadable file")
	ErrEmptyFile            = errors.New("empty file")
	ErrHeaderMismatch       = errors.New("template mapping not matched")
	ErrNoModulesSelected    = errors.New("no modules selected")
	ErrAccountsNotSupported = errors.New("module does not provision accounts")
	ErrNoRetryEntries       = errors.New("no account entries to retry")
)

// ModuleNotFoundError reports a lookup of an unregistered module id.
type ModuleNotFoundError struct {
	ID string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %q", e.ID)
}

func (e *ModuleNotFoundError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// HeaderMismatch is the diagnostic produced when uploaded columns do not fit a module.
type HeaderMismatch struct {
	MissingColumns  []string `json:"missingColumns"`
	ExpectedColumns []string `json:"expectedColumns"`
	UploadedColumns []string `json:"uploadedColumns"`
	Suggestion      string   `json:"suggestion"`
}

// HeaderMismatchError aborts preview and commit before any row is processed.
type HeaderMismatchError struct {
	Module   string
	Mismatch HeaderMismatch
}

func (e *HeaderMismatchError) Error() string {
	if len(e.Mismatch.MissingColumns) == 0 {
		return fmt.Sprintf("template mapping not matched for %s: no expected columns found", e.Module)
	}
	return fmt.Sprintf("template mapping not matched for %s: missing required columns: %s",
		e.Module, strings.Join(e.Mismatch.MissingColumns, ", "))
}

func (e *HeaderMismatchError) Is(target error) bool {
	return target == ErrHeaderMismatch
}
