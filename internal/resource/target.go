package resource

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// RedirectPrefix is the path of the endpoint that fetches missing resources.
const RedirectPrefix = "/_magicwand/resource/"

// Ref names one resource.
type Ref struct {
	Hash     string
	Filename string
}

// Target publishes stored resources into the public web directory.
type Target struct {
	PublicPath   string // web root
	BaseURI      string // public base URL, may be empty for relative URIs
	Storage      Storage
	ProxyEnabled bool
}

func (t Target) publicFile(hash, filename string) string {
	return filepath.Join(t.PublicPath, "_Resources", "Persistent", hash, filename)
}

// Publish symlinks the stored file into the public directory.
func (t Target) Publish(hash, filename string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	src, err := t.Storage.Path(hash)
	if err != nil {
		return err
	}
	dst := t.publicFile(hash, filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if cur, err := os.Readlink(dst); err == nil && cur == src {
		return nil
	}
	_ = os.Remove(dst)
	return os.Symlink(src, dst)
}

// StaticURI is where the web server serves a published resource.
func (t Target) StaticURI(hash, filename string) string {
	return strings.TrimRight(t.BaseURI, "/") + "/_Resources/Persistent/" + hash + "/" + url.PathEscape(filename)
}

// PublicURI returns the static URI, or the redirect endpoint when the
// resource is missing locally and proxying is on.
func (t Target) PublicURI(hash, filename string) string {
	if t.ProxyEnabled && !t.Storage.Has(hash) {
		return strings.TrimRight(t.BaseURI, "/") + RedirectPrefix + hash + "/" + url.PathEscape(filename)
	}
	return t.StaticURI(hash, filename)
}

// PublishAll publishes the resources present in storage and skips the rest;
// missing ones are fetched on demand. It returns how many were published.
func (t Target) PublishAll(refs []Ref) (int, error) {
	var n int
	var errs []error
	for _, r := range refs {
		if !t.Storage.Has(r.Hash) {
			continue
		}
		if err := t.Publish(r.Hash, r.Filename); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
