package runctx

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunCtx manages a per-run staging directory, e.g. for dumps that cannot be
// streamed straight into the restore.
type RunCtx struct {
	Dir        string
	keepOnExit bool
}

// New creates directory under system temp with prefix.
func New(prefix string, keep bool) (*RunCtx, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	return &RunCtx{Dir: dir, keepOnExit: keep}, nil
}

// Cleanup removes directory unless keepOnExit=true.
func (r *RunCtx) Cleanup() error {
	if r.keepOnExit {
		return nil
	}
	return os.RemoveAll(r.Dir)
}

// Path joins run dir with subpath.
func (r *RunCtx) Path(elem ...string) string {
	parts := append([]string{r.Dir}, elem...)
	return filepath.Join(parts...)
}

// Create opens a new private file inside the run dir.
func (r *RunCtx) Create(name string) (*os.File, error) {
	return os.OpenFile(r.Path(name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
}

func (r *RunCtx) String() string { return fmt.Sprintf("RunCtx(%s)", r.Dir) }
