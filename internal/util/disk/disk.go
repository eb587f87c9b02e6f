package disk

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrInsufficientSpace is returned by EnsureSpace.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Space holds information about free and total bytes.
type Space struct {
	Free  uint64
	Total uint64
}

// FreeBytes returns available (for unprivileged user) and total bytes on filesystem containing path.
func FreeBytes(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Space{Free: st.Bavail * bsize, Total: st.Blocks * bsize}, nil
}

// EnsureSpace checks that the filesystem holding path has at least need bytes free.
func EnsureSpace(path string, need uint64) error {
	if need == 0 {
		return nil
	}
	sp, err := FreeBytes(path)
	if err != nil {
		return err
	}
	if sp.Free < need {
		return fmt.Errorf("%w on %s: free %s, need %s", ErrInsufficientSpace, path, PrettyBytes(int64(sp.Free)), PrettyBytes(int64(need)))
	}
	return nil
}

// PrettyBytes converts bytes to human-readable IEC units similar to pg_size_pretty.
func PrettyBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d bytes", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(b) / float64(div)
	suffix := []string{"kB", "MB", "GB", "TB", "PB", "EB"}[exp]
	return fmt.Sprintf("%.2f %s", value, suffix)
}
