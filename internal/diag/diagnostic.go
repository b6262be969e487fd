package diag

import (
	"fathom/internal/source"
)

// Note attaches secondary context to a diagnostic.
type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is a single typed error value crossing the backend boundary.
// Rendering is the caller's concern; the backend only produces these.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
}

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

// NewError builds a user-facing error diagnostic.
func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

// NewBug builds an internal-compiler-error diagnostic. These indicate a
// defect in the compiler, not the input program, but are surfaced through
// the same channel rather than aborting the process.
func NewBug(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevBug, code, primary, msg)
}

func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}
