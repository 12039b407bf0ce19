package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/loom/internal/token"
)

type ErrorCode string

// Declaration errors
const (
	ErrD001 ErrorCode = "D001" // duplicate symbol
	ErrD002 ErrorCode = "D002" // unresolved symbol
	ErrD003 ErrorCode = "D003" // circular initializer
	ErrD004 ErrorCode = "D004" // circular type alias
)

// Module errors
const (
	ErrM001 ErrorCode = "M001" // module not found
	ErrM002 ErrorCode = "M002" // network error
	ErrM003 ErrorCode = "M003" // http status error
	ErrM004 ErrorCode = "M004" // parse failure
)

// Type errors
const (
	ErrT001 ErrorCode = "T001" // type mismatch
	ErrT002 ErrorCode = "T002" // arity mismatch
	ErrT003 ErrorCode = "T003" // not callable
	ErrT004 ErrorCode = "T004" // unknown field
)

// Binding errors
const (
	ErrB001 ErrorCode = "B001" // missing native symbol
	ErrB002 ErrorCode = "B002" // invalid argument / descriptor
	ErrB003 ErrorCode = "B003" // library file not found
)

var codeTitles = map[ErrorCode]string{
	ErrD001: "duplicate symbol",
	ErrD002: "unresolved symbol",
	ErrD003: "circular initializer",
	ErrD004: "circular type alias",
	ErrM001: "module not found",
	ErrM002: "network error",
	ErrM003: "http status error",
	ErrM004: "parse error",
	ErrT001: "type mismatch",
	ErrT002: "arity mismatch",
	ErrT003: "not callable",
	ErrT004: "unknown field",
	ErrB001: "missing symbol",
	ErrB002: "invalid argument",
	ErrB003: "file not found",
}

// Title returns a short human name for the code.
func (c ErrorCode) Title() string {
	if t, ok := codeTitles[c]; ok {
		return t
	}
	return string(c)
}

// Note is secondary information attached to a diagnostic, e.g. one step of a
// reported cycle.
type Note struct {
	Pos     token.Position
	Message string
}

// DiagnosticError is a compile-time error with a stable code and a source
// position. Cause keeps the structured domain error it was built from so
// callers can still match it with errors.As.
type DiagnosticError struct {
	Code    ErrorCode
	Pos     token.Position
	File    string
	Message string
	Related []Note
	Cause   error
}

func NewError(code ErrorCode, pos token.Position, format string, args ...interface{}) *DiagnosticError {
	return &DiagnosticError{
		Code:    code,
		Pos:     pos,
		File:    pos.File,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap builds a diagnostic around a structured error.
func Wrap(code ErrorCode, pos token.Position, cause error) *DiagnosticError {
	return &DiagnosticError{
		Code:    code,
		Pos:     pos,
		File:    pos.File,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// WithNote appends a related note and returns the receiver.
func (e *DiagnosticError) WithNote(pos token.Position, format string, args ...interface{}) *DiagnosticError {
	e.Related = append(e.Related, Note{Pos: pos, Message: fmt.Sprintf(format, args...)})
	return e
}

func (e *DiagnosticError) Error() string {
	pos := e.Pos
	if pos.File == "" {
		pos.File = e.File
	}
	var sb strings.Builder
	if pos.IsValid() || pos.File != "" {
		sb.WriteString(pos.String())
		sb.WriteString(": ")
	}
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	return sb.String()
}

func (e *DiagnosticError) Unwrap() error {
	return e.Cause
}

// Key identifies a diagnostic for deduplication.
func (e *DiagnosticError) Key() string {
	return fmt.Sprintf("%s:%d:%d:%s:%s", e.File, e.Pos.Line, e.Pos.Column, e.Code, e.Message)
}

// List collects diagnostics, dropping duplicates.
type List struct {
	seen  map[string]bool
	items []*DiagnosticError
}

func (l *List) Add(err *DiagnosticError) {
	if err == nil {
		return
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	key := err.Key()
	if l.seen[key] {
		return
	}
	l.seen[key] = true
	l.items = append(l.items, err)
}

func (l *List) Len() int {
	return len(l.items)
}

// Sorted returns the diagnostics ordered by position.
func (l *List) Sorted() []*DiagnosticError {
	out := make([]*DiagnosticError, len(l.items))
	copy(out, l.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pos.Before(out[j].Pos)
	})
	return out
}

// Err returns nil when the list is empty and an *Errors otherwise.
func (l *List) Err() error {
	if len(l.items) == 0 {
		return nil
	}
	return &Errors{List: l.Sorted()}
}

// Errors is the error returned by a failed compilation unit.
type Errors struct {
	List []*DiagnosticError
}

func (e *Errors) Error() string {
	if len(e.List) == 1 {
		return e.List[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors:", len(e.List)))
	for _, d := range e.List {
		sb.WriteString("\n\t")
		sb.WriteString(d.Error())
	}
	return sb.String()
}

// Unwrap exposes every diagnostic to errors.Is / errors.As.
func (e *Errors) Unwrap() []error {
	out := make([]error, len(e.List))
	for i, d := range e.List {
		out[i] = d
	}
	return out
}

// HasCode reports whether err contains a diagnostic with the given code.
func HasCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case *DiagnosticError:
		return e.Code == code
	case *Errors:
		for _, d := range e.List {
			if d.Code == code {
				return true
			}
		}
	}
	return false
}
