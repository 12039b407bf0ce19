package modules

import (
	"fmt"

	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/token"
)

// ModuleNotFoundError is returned for local specifiers that match nothing.
type ModuleNotFoundError struct {
	Specifier string
	Searched  []string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %q not found", e.Specifier)
}

// NetworkError is a transport failure while fetching a remote module.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HttpStatusError is a non-2xx response for a remote module.
type HttpStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Status)
}

// ParseError wraps a failure reported by the parser collaborator.
type ParseError struct {
	Module ModuleID
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Module, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ImportError ties a load failure to the import statement that caused it.
type ImportError struct {
	Specifier string
	From      ModuleID
	Pos       token.Position
	Err       error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %q: %v", e.Specifier, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Diagnostic renders the failure at the import location, with a code chosen
// from the underlying error. Local and remote failures share this format.
func (e *ImportError) Diagnostic() *diagnostics.DiagnosticError {
	code := diagnostics.ErrM001
	switch e.Err.(type) {
	case *NetworkError:
		code = diagnostics.ErrM002
	case *HttpStatusError:
		code = diagnostics.ErrM003
	case *ParseError:
		code = diagnostics.ErrM004
	}
	d := diagnostics.Wrap(code, e.Pos, e)
	if nf, ok := e.Err.(*ModuleNotFoundError); ok && len(nf.Searched) > 0 {
		for _, p := range nf.Searched {
			d.WithNote(token.Position{}, "searched %s", p)
		}
	}
	return d
}
