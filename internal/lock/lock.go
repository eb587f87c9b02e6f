package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock wraps gofrs/flock for one filesystem path (a stash entry).
type FileLock struct {
	fl   *flock.Flock
	path string
}

// New returns a lock at <tmp>/magicwand_<hash>.lock for target.
func New(target string) *FileLock {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = filepath.Clean(target)
	}
	sum := sha256.Sum256([]byte(abs))
	name := filepath.Join(os.TempDir(), "magicwand_"+hex.EncodeToString(sum[:8])+".lock")
	return &FileLock{fl: flock.New(name), path: name}
}

// TryLock attempts non-blocking lock.
func (l *FileLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	_ = os.Remove(l.path)
	return nil
}
