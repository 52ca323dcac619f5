package store

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// RootName is the name given to the root version at creation.
const RootName = "Initial version"

// Options selects and tunes the persistence backend.
type Options struct {
	// Backend is BackendFile (default) or BackendBadger.
	Backend string
	// InMemory runs the badger backend without touching disk. Tests only.
	InMemory bool
}

// Store is the persisted history of one tracked file. Callers mutate a clone
// of the state and hand it back through Replace, which persists it before it
// becomes visible.
type Store struct {
	path    string
	backend Backend

	mu    sync.RWMutex
	state *State
}

func newBackend(path string, opts Options, creating bool) (Backend, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		b := NewFileBackend(path)
		if creating {
			exists, err := b.Exists()
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperrors.AlreadyExists(fmt.Sprintf("store %s already exists", path))
			}
		}
		return b, nil

	case BackendBadger:
		if !opts.InMemory {
			info, err := os.Stat(path)
			switch {
			case err == nil && !info.IsDir():
				if creating {
					return nil, apperrors.AlreadyExists(fmt.Sprintf("store %s already exists", path))
				}
				return nil, apperrors.MalformedStore("store %s is not a directory", path)
			case err != nil && os.IsNotExist(err) && !creating:
				return nil, apperrors.NotFound(fmt.Sprintf("store %s", path), err)
			case err != nil && !os.IsNotExist(err):
				return nil, apperrors.IO("checking store path", err)
			}
		}
		b, err := OpenBadgerBackend(path, opts.InMemory)
		if err != nil {
			return nil, err
		}
		if creating {
			empty, err := b.Empty()
			if err != nil {
				b.Close()
				return nil, err
			}
			if !empty {
				b.Close()
				return nil, apperrors.AlreadyExists(fmt.Sprintf("store %s already exists", path))
			}
		}
		return b, nil

	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown store backend %q", opts.Backend))
	}
}

// Create writes a fresh store whose only version is the root. The root's
// difference is expressed against empty content, so it reconstructs to seed.
func Create(path, trackedFile string, seed []byte, opts Options) (*Store, error) {
	if trackedFile == "" {
		return nil, apperrors.ValidationError("tracked file path is required")
	}

	backend, err := newBackend(path, opts, true)
	if err != nil {
		return nil, err
	}

	d, err := diff.Compute(nil, seed)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("encoding seed content: %w", err)
	}

	state := &State{
		TrackedFile: trackedFile,
		Current:     1,
		NextID:      2,
		Versions: []Version{{
			ID:         1,
			Base:       1,
			Name:       RootName,
			Date:       time.Now().UTC(),
			Difference: d,
		}},
	}

	if err := backend.Save(state); err != nil {
		backend.Close()
		return nil, err
	}

	return &Store{path: path, backend: backend, state: state}, nil
}

// Open loads and validates a persisted store.
func Open(path string, opts Options) (*Store, error) {
	backend, err := newBackend(path, opts, false)
	if err != nil {
		return nil, err
	}

	state, err := backend.Load()
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := state.Validate(); err != nil {
		backend.Close()
		return nil, err
	}

	return &Store{path: path, backend: backend, state: state}, nil
}

func (s *Store) Path() string {
	return s.path
}

// State returns a deep copy of the current state.
func (s *Store) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// View runs fn against the visible state under a read lock. fn must not
// retain or modify state.
func (s *Store) View(fn func(state *State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Versions returns a copy of every version in creation order.
func (s *Store) Versions() []Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Version, len(s.state.Versions))
	for i, v := range s.state.Versions {
		out[i] = v.Clone()
	}
	return out
}

func (s *Store) Version(id uint32) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.Find(id)
	if !ok {
		return Version{}, apperrors.UnknownVersion(id)
	}
	return v.Clone(), nil
}

func (s *Store) Current() Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.state.Find(s.state.Current)
	return v.Clone()
}

func (s *Store) TrackedFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TrackedFile
}

// Replace validates next, persists it and makes it the visible state. On
// error the previous state stays in place.
func (s *Store) Replace(next *State) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// SetTrackedFile rebinds the store to another tracked file. Versions and the
// current pointer are untouched.
func (s *Store) SetTrackedFile(path string) error {
	if path == "" {
		return apperrors.ValidationError("tracked file path is required")
	}
	next := s.State()
	next.TrackedFile = path
	return s.Replace(next)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
