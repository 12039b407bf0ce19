package ffi

import (
	"errors"
	"fmt"

	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/token"
)

var (
	ErrMissingSymbol   = errors.New("missing symbol")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFileNotFound    = errors.New("file not found")

	// ErrNativeUnavailable is returned when native code is requested from a
	// build without the tcc backend.
	ErrNativeUnavailable = errors.New("native code needs a build with -tags tcc and cgo")
)

// MissingSymbolError reports a declared function the library does not export.
type MissingSymbolError struct {
	Name    string
	Library string
}

func (e *MissingSymbolError) Error() string {
	if e.Library == "" {
		return fmt.Sprintf("missing symbol %q", e.Name)
	}
	return fmt.Sprintf("missing symbol %q in %s", e.Name, e.Library)
}

func (e *MissingSymbolError) Is(target error) bool { return target == ErrMissingSymbol }

// InvalidArgumentError reports a malformed declaration or descriptor.
type InvalidArgumentError struct {
	Decl   string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Decl == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument in %s: %s", e.Decl, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// FileNotFoundError reports a library that could not be opened.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("library %s: file not found", e.Path)
	}
	return fmt.Sprintf("library %s: %v", e.Path, e.Err)
}

func (e *FileNotFoundError) Is(target error) bool { return target == ErrFileNotFound }
func (e *FileNotFoundError) Unwrap() error         { return e.Err }

func invalidf(format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Reason: fmt.Sprintf(format, args...)}
}

func invalidIn(decl string, format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Decl: decl, Reason: fmt.Sprintf(format, args...)}
}

// Diagnostic converts a binding error into a coded diagnostic at pos.
// Errors outside the binding taxonomy are reported as invalid arguments.
func Diagnostic(err error, pos token.Position) *diagnostics.DiagnosticError {
	var diag *diagnostics.DiagnosticError
	if errors.As(err, &diag) {
		return diag
	}
	code := diagnostics.ErrB002
	switch {
	case errors.Is(err, ErrMissingSymbol):
		code = diagnostics.ErrB001
	case errors.Is(err, ErrFileNotFound):
		code = diagnostics.ErrB003
	}
	return diagnostics.Wrap(code, pos, err)
}
