// Package redact masks credentials in everything printed during a clone or restore.
package redact

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/alessio/shellescape"
)

// Mask replaces every secret occurrence.
const Mask = "[xxx]"

// Secrets is a set of strings that must not reach the console.
// Each secret is registered with its shell-quoted and doubly shell-quoted forms,
// since that is how it shows up in echoed command lines.
type Secrets struct {
	mu     sync.RWMutex
	values []string
}

// Add registers secrets. Empty strings are ignored.
func (s *Secrets) Add(secrets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range secrets {
		if v == "" {
			continue
		}
		quoted := shellescape.Quote(v)
		s.insert(v)
		s.insert(quoted)
		s.insert(shellescape.Quote(quoted))
		// inside a larger quoted token, e.g. '--opt=it'"'"'s'
		if strings.Contains(v, "'") {
			s.insert(strings.ReplaceAll(v, "'", `'"'"'`))
		}
	}
	// longest first so a quoted form is masked before its raw substring
	sort.SliceStable(s.values, func(i, j int) bool { return len(s.values[i]) > len(s.values[j]) })
}

func (s *Secrets) insert(v string) {
	for _, have := range s.values {
		if have == v {
			return
		}
	}
	s.values = append(s.values, v)
}

// Redact returns text with every registered secret masked.
func (s *Secrets) Redact(text string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.values {
		text = strings.ReplaceAll(text, v, Mask)
	}
	return text
}

// Writer redacts complete lines before forwarding them. A trailing partial
// line is held back until a newline arrives or Flush is called.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	secrets *Secrets
	buf     []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer, secrets *Secrets) *Writer {
	return &Writer{w: w, secrets: secrets}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := w.secrets.Redact(string(w.buf[:i+1]))
		w.buf = w.buf[i+1:]
		if _, err := io.WriteString(w.w, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes out any buffered partial line.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	line := w.secrets.Redact(string(w.buf))
	w.buf = w.buf[:0]
	_, err := io.WriteString(w.w, line)
	return err
}
