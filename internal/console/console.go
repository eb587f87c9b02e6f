// Package console prints the numbered step headlines shown during long operations.
package console

import (
	"fmt"
	"io"
	"strings"
)

// Printer numbers headlines in the order they are printed.
type Printer struct {
	w io.Writer
	n int
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer { return &Printer{w: w} }

// Writer exposes the underlying writer for command output.
func (p *Printer) Writer() io.Writer { return p.w }

// Headline prints "N. title" followed by an underline.
func (p *Printer) Headline(format string, args ...any) {
	p.n++
	title := fmt.Sprintf("%d. %s", p.n, fmt.Sprintf(format, args...))
	fmt.Fprintf(p.w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

// Line prints one line of text.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Command echoes a command line before it is executed.
func (p *Printer) Command(line string) {
	fmt.Fprintf(p.w, "> %s\n", line)
}
