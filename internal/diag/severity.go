package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevNote is for informational diagnostics attached to other errors.
	SevNote Severity = iota
	// SevWarning is for warning diagnostics.
	SevWarning
	// SevError is for errors caused by the input program.
	SevError
	// SevBug marks an internal compiler error: an invariant the backend
	// relies on was violated, which is a defect in the compiler itself.
	SevBug
)

func (s Severity) String() string {
	switch s {
	case SevNote:
		return "note"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	case SevBug:
		return "internal compiler error"
	}
	return "unknown"
}
