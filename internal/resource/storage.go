// Package resource stores content-addressed assets locally and, when one is
// missing, fetches it from the remote origin it was cloned from.
package resource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidHash      = errors.New("invalid resource hash")
	ErrInvalidFilename  = errors.New("invalid resource filename")
)

// ResourceNotFoundError carries the origin URI and HTTP status (0 for
// transport failures).
type ResourceNotFoundError struct {
	URI    string
	Status int
	Err    error
}

func (e *ResourceNotFoundError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("resource not found: %s: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("resource not found: %s: status %d", e.URI, e.Status)
}

func (e *ResourceNotFoundError) Is(target error) bool { return target == ErrResourceNotFound }

func (e *ResourceNotFoundError) Unwrap() error { return e.Err }

// ValidateHash accepts 40 lowercase hex characters.
func ValidateHash(hash string) error {
	if len(hash) != 40 {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
	}
	return nil
}

// ValidateFilename rejects names that would escape the hash directory.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// Storage is a directory of files named by their sha1, fanned out by the
// first four hex digits.
type Storage struct {
	Root string
}

// Path returns <root>/h0/h1/h2/h3/hash.
func (s Storage) Path(hash string) (string, error) {
	if err := ValidateHash(hash); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, hash[0:1], hash[1:2], hash[2:3], hash[3:4], hash), nil
}

// Has reports whether the resource exists locally.
func (s Storage) Has(hash string) bool {
	p, err := s.Path(hash)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Open opens a stored resource.
func (s Storage) Open(hash string) (*os.File, error) {
	p, err := s.Path(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, hash)
	}
	return f, err
}

// Store writes r under hash: temp file in the target directory, rename into
// place, mode 0644. Readers never observe a partial file.
func (s Storage) Store(hash string, r io.Reader) (string, error) {
	p, err := s.Path(hash)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+hash+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", err
	}
	return p, nil
}
