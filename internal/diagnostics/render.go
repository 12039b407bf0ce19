package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
)

// RenderOptions controls report formatting.
type RenderOptions struct {
	// Color forces colored output. When nil, color is enabled only if the
	// writer is an *os.File attached to a terminal.
	Color *bool
}

func useColor(w io.Writer, opts RenderOptions) bool {
	if opts.Color != nil {
		return *opts.Color
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes a human-readable report for err. Diagnostics are printed as
// `file:line:col: error[CODE]: message` followed by indented notes; any other
// error is printed as a single line.
func Render(w io.Writer, err error, opts RenderOptions) error {
	if err == nil {
		return nil
	}
	color := useColor(w, opts)

	var diags []*DiagnosticError
	var list *Errors
	var single *DiagnosticError
	switch {
	case errors.As(err, &list):
		diags = list.List
	case errors.As(err, &single):
		diags = []*DiagnosticError{single}
	}

	if len(diags) == 0 {
		_, werr := fmt.Fprintf(w, "%s\n", paint(color, ansiRed, "error: "+err.Error()))
		return werr
	}

	for _, d := range diags {
		if _, werr := io.WriteString(w, renderOne(d, color)); werr != nil {
			return werr
		}
	}
	return nil
}

// Report renders err into a string without color.
func Report(err error) string {
	var sb strings.Builder
	noColor := false
	_ = Render(&sb, err, RenderOptions{Color: &noColor})
	return sb.String()
}

func renderOne(d *DiagnosticError, color bool) string {
	var sb strings.Builder
	pos := d.Pos
	if pos.File == "" {
		pos.File = d.File
	}
	if pos.IsValid() || pos.File != "" {
		sb.WriteString(paint(color, ansiBold, pos.String()+":"))
		sb.WriteString(" ")
	}
	sb.WriteString(paint(color, ansiRed, fmt.Sprintf("error[%s]:", d.Code)))
	sb.WriteString(" ")
	sb.WriteString(d.Message)
	sb.WriteString("\n")
	for _, n := range d.Related {
		sb.WriteString("    ")
		if n.Pos.IsValid() {
			sb.WriteString(paint(color, ansiDim, n.Pos.String()+":"))
			sb.WriteString(" ")
		}
		sb.WriteString(n.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func paint(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}
