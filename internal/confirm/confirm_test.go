package confirm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAsk(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
	}{
		{"yes\n", nil},
		{"  yes  \n", nil},
		{"yes", nil},
		{"y\n", ErrUserDeclined},
		{"YES\n", ErrUserDeclined},
		{"", ErrUserDeclined},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		err := Ask(strings.NewReader(tt.in), &out)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("input %q: expected %v, got %v", tt.in, tt.wantErr, err)
		}
		if !strings.Contains(out.String(), "Type 'yes' to continue") {
			t.Fatalf("prompt missing: %q", out.String())
		}
	}
}

type flushRecorder struct {
	bytes.Buffer
	flushedAt int
}

func (f *flushRecorder) Flush() error {
	f.flushedAt = f.Len()
	return nil
}

func TestAskFlushesPrompt(t *testing.T) {
	var out flushRecorder
	if err := Ask(strings.NewReader("yes\n"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.flushedAt != len(prompt) {
		t.Fatalf("expected flush right after the prompt, got offset %d", out.flushedAt)
	}
}
