package store

import (
	"time"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
)

// Version is one node of the history tree. The root is the only version whose
// Base equals its ID.
type Version struct {
	ID         uint32          `json:"id"`
	Base       uint32          `json:"base"`
	Name       string          `json:"name"`
	Date       time.Time       `json:"date"`
	Difference diff.Difference `json:"difference"`
}

func (v Version) IsRoot() bool {
	return v.ID == v.Base
}

func (v Version) Clone() Version {
	v.Difference = v.Difference.Clone()
	return v
}

// State is everything a store persists.
type State struct {
	TrackedFile string    `json:"tracked_file"`
	Current     uint32    `json:"current"`
	NextID      uint32    `json:"next_id"`
	Versions    []Version `json:"versions"`
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *State) Clone() *State {
	out := &State{
		TrackedFile: s.TrackedFile,
		Current:     s.Current,
		NextID:      s.NextID,
		Versions:    make([]Version, len(s.Versions)),
	}
	for i, v := range s.Versions {
		out.Versions[i] = v.Clone()
	}
	return out
}

// Index returns the position of id in Versions, or -1.
func (s *State) Index(id uint32) int {
	// Versions are sorted by id.
	lo, hi := 0, len(s.Versions)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.Versions[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.Versions) && s.Versions[lo].ID == id {
		return lo
	}
	return -1
}

func (s *State) Find(id uint32) (Version, bool) {
	i := s.Index(id)
	if i < 0 {
		return Version{}, false
	}
	return s.Versions[i], true
}

func (s *State) Root() Version {
	return s.Versions[0]
}

// Children returns the direct children of id in creation order.
func (s *State) Children(id uint32) []Version {
	var out []Version
	for _, v := range s.Versions {
		if v.Base == id && !v.IsRoot() {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks every structural invariant of the history tree:
// a single root stored first, strictly increasing ids, every other base
// naming an earlier version, an existing current pointer and well-formed
// differences.
func (s *State) Validate() error {
	if len(s.Versions) == 0 {
		return apperrors.MalformedStore("store has no versions")
	}
	if s.TrackedFile == "" {
		return apperrors.MalformedStore("store has no tracked file")
	}

	root := s.Versions[0]
	if !root.IsRoot() {
		return apperrors.MalformedStore("first version %d is not a root (base %d)", root.ID, root.Base)
	}

	seen := make(map[uint32]struct{}, len(s.Versions))
	var last uint32
	for i, v := range s.Versions {
		if i > 0 {
			if v.ID <= last {
				if _, dup := seen[v.ID]; dup {
					return apperrors.MalformedStore("duplicate version id %d", v.ID)
				}
				return apperrors.MalformedStore("version id %d out of order", v.ID)
			}
			if v.IsRoot() {
				return apperrors.MalformedStore("second root version %d", v.ID)
			}
			if _, ok := seen[v.Base]; !ok {
				return apperrors.MalformedStore("version %d has base %d which is not an earlier version", v.ID, v.Base)
			}
		}
		if err := v.Difference.Validate(); err != nil {
			return apperrors.MalformedStore("version %d: %v", v.ID, err)
		}
		seen[v.ID] = struct{}{}
		last = v.ID
	}

	if _, ok := seen[s.Current]; !ok {
		return apperrors.MalformedStore("current version %d does not exist", s.Current)
	}
	if s.NextID <= last {
		return apperrors.MalformedStore("next id %d not above last id %d", s.NextID, last)
	}
	return nil
}

// Backend persists a State. Save must be atomic: a reader never observes a
// partially written state.
type Backend interface {
	Load() (*State, error)
	Save(state *State) error
	Close() error
}
