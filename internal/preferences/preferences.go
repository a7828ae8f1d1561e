package preferences

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type document struct {
	Ints  map[string]int  `yaml:"ints,omitempty"`
	Flags map[string]bool `yaml:"flags,omitempty"`
}

// Store is a small key-value document kept outside the database, so values
// such as the bundle version survive the database file being replaced.
type Store struct {
	fs   afero.Fs
	path string

	mu  sync.Mutex
	doc document
}

// Open loads the document at path. A missing file is an empty store.
func Open(fs afero.Fs, path string) (*Store, error) {
	s := &Store{
		fs:   fs,
		path: path,
		doc:  document{Ints: map[string]int{}, Flags: map[string]bool{}},
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, errors.Wrapf(err, "failed to read preferences %s", path)
	}

	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse preferences %s", path)
	}
	if s.doc.Ints == nil {
		s.doc.Ints = map[string]int{}
	}
	if s.doc.Flags == nil {
		s.doc.Flags = map[string]bool{}
	}

	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Int(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.doc.Ints[key]
	return v, ok
}

func (s *Store) SetInt(key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.doc.Ints[key]
	s.doc.Ints[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			s.doc.Ints[key] = prev
		} else {
			delete(s.doc.Ints, key)
		}
		return err
	}
	return nil
}

func (s *Store) Bool(key string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.doc.Flags[key]
	return v, ok
}

func (s *Store) SetBool(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.doc.Flags[key]
	s.doc.Flags[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			s.doc.Flags[key] = prev
		} else {
			delete(s.doc.Flags, key)
		}
		return err
	}
	return nil
}

// Delete removes key from both value kinds.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hadInt := s.doc.Ints[key]
	_, hadFlag := s.doc.Flags[key]
	if !hadInt && !hadFlag {
		return nil
	}

	delete(s.doc.Ints, key)
	delete(s.doc.Flags, key)
	return s.saveLocked()
}

// Keys returns every stored key, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.doc.Ints)+len(s.doc.Flags))
	for k := range s.doc.Ints {
		keys = append(keys, k)
	}
	for k := range s.doc.Flags {
		if _, ok := s.doc.Ints[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// saveLocked writes the document to a temporary file and renames it over
// the old one.
func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create preferences directory")
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary preferences file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return errors.Wrap(err, "failed to write preferences")
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return errors.Wrap(err, "failed to close preferences")
	}

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return errors.Wrap(err, "failed to replace preferences")
	}
	return nil
}
