package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"fathom/internal/source"
)

// RenderOpts configures diagnostic rendering.
type RenderOpts struct {
	Color bool
}

// Render writes one line per diagnostic:
//
//	<path>:<line>:<col>: <severity>[<code>]: <message>
//
// followed by indented note lines. Callers should Sort the bag first.
func Render(w io.Writer, bag *Bag, fs *source.FileSet, opts RenderOpts) {
	if w == nil || bag == nil {
		return
	}
	for _, d := range bag.Items() {
		fmt.Fprintf(w, "%s: %s[%s]: %s\n",
			location(fs, d.Primary), severityLabel(d.Severity, opts.Color), d.Code, d.Message)
		if d.Severity == SevBug {
			fmt.Fprintf(w, "  note: this is a bug in the compiler, please report it\n")
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "  %s: note: %s\n", location(fs, n.Span), n.Msg)
		}
	}
}

func location(fs *source.FileSet, sp source.Span) string {
	if fs == nil {
		return sp.String()
	}
	f := fs.Get(sp.File)
	if f == nil {
		return sp.String()
	}
	pos, ok := fs.Position(sp.File, sp.Start)
	if !ok {
		return f.Path
	}
	return fmt.Sprintf("%s:%d:%d", f.Path, pos.Line, pos.Col)
}

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	bugColor  = color.New(color.FgMagenta, color.Bold)
)

func severityLabel(sev Severity, colored bool) string {
	s := sev.String()
	if !colored {
		return s
	}
	switch sev {
	case SevError:
		return errColor.Sprint(s)
	case SevWarning:
		return warnColor.Sprint(s)
	case SevBug:
		return bugColor.Sprint(s)
	default:
		return s
	}
}
