// Package status keeps a small JSON manifest with the last clone and the last
// stash operation.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	SectionClone = "clone"
	SectionStash = "stash"

	PropertyPreset    = "preset"
	PropertyName      = "name"
	PropertyOperation = "operation"

	fileName = "status.json"
)

var (
	// ErrInvalidSection is returned for any section other than clone and stash.
	ErrInvalidSection = errors.New("invalid status section")
	// ErrCorrupt means the manifest file exists but cannot be decoded.
	ErrCorrupt = errors.New("status manifest corrupt")
)

// Section holds string properties and the time of the last write.
type Section struct {
	Latest     time.Time         `json:"latest"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Manifest is the decoded status file.
type Manifest map[string]*Section

func validSection(name string) error {
	if name != SectionClone && name != SectionStash {
		return fmt.Errorf("%w: %q", ErrInvalidSection, name)
	}
	return nil
}

// Set writes a property and bumps the section's latest timestamp.
func (m Manifest) Set(section, property, value string, at time.Time) error {
	if err := validSection(section); err != nil {
		return err
	}
	s := m[section]
	if s == nil {
		s = &Section{}
		m[section] = s
	}
	if s.Properties == nil {
		s.Properties = map[string]string{}
	}
	s.Properties[property] = value
	s.Latest = at.UTC()
	return nil
}

// Get returns a property or "" when unset.
func (m Manifest) Get(section, property string) (string, error) {
	if err := validSection(section); err != nil {
		return "", err
	}
	if s := m[section]; s != nil {
		return s.Properties[property], nil
	}
	return "", nil
}

// Latest returns the last write time of a section, zero when never written.
func (m Manifest) Latest(section string) (time.Time, error) {
	if err := validSection(section); err != nil {
		return time.Time{}, err
	}
	if s := m[section]; s != nil {
		return s.Latest, nil
	}
	return time.Time{}, nil
}

// Sections lists present sections sorted.
func (m Manifest) Sections() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store reads and writes <dir>/status.json.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore returns a Store in dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, fileName), now: time.Now}
}

// Path of the manifest file.
func (s *Store) Path() string { return s.path }

// Load returns the manifest, or an empty one when the file does not exist.
func (s *Store) Load() (Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	for name, sec := range m {
		if err := validSection(name); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
		}
		// "clone": null reads as never written
		if sec == nil {
			delete(m, name)
		}
	}
	return m, nil
}

// Save writes the manifest atomically.
func (s *Store) Save(m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// update loads, applies fn and saves. A corrupt file is replaced.
func (s *Store) update(fn func(Manifest) error) error {
	m, err := s.Load()
	if errors.Is(err, ErrCorrupt) {
		m = Manifest{}
	} else if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}
	return s.Save(m)
}

// RecordClone marks preset as the current one, cloned now.
func (s *Store) RecordClone(preset string) error {
	return s.SetCurrentPreset(preset, s.now())
}

// SetCurrentPreset marks preset as current with an explicit clone time.
func (s *Store) SetCurrentPreset(preset string, clonedAt time.Time) error {
	return s.update(func(m Manifest) error {
		return m.Set(SectionClone, PropertyPreset, preset, clonedAt)
	})
}

// RecordStash notes the last stash operation.
func (s *Store) RecordStash(name, operation string) error {
	now := s.now()
	return s.update(func(m Manifest) error {
		if err := m.Set(SectionStash, PropertyName, name, now); err != nil {
			return err
		}
		return m.Set(SectionStash, PropertyOperation, operation, now)
	})
}

// CurrentPreset returns the last cloned preset and when it was cloned.
// name is empty when nothing was cloned yet.
func (s *Store) CurrentPreset() (name string, clonedAt time.Time, err error) {
	m, err := s.Load()
	if err != nil {
		return "", time.Time{}, err
	}
	name, _ = m.Get(SectionClone, PropertyPreset)
	clonedAt, _ = m.Latest(SectionClone)
	return name, clonedAt, nil
}
