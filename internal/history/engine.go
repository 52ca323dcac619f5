// Package history implements the single-file version history engine: commit,
// checkout, rename, delete and rollback over a persisted tree of versions,
// each stored as a line diff against its base.
package history

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
	"sbvc/internal/store"
	"sbvc/internal/workspace"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const DefaultCacheSize = 64

// Options configures an Engine.
type Options struct {
	Store store.Options
	// CacheSize is the number of reconstructed contents kept in memory.
	CacheSize int
	// ContextLines is used by WorkingDiff.
	ContextLines int
	Logger       *zap.Logger
}

// Engine is the only owner of a store and its tracked file. Reads take a
// shared lock, mutations an exclusive one, so a read never observes a
// mutation in progress.
type Engine struct {
	mu     sync.RWMutex
	store  *store.Store
	file   *workspace.TrackedFile
	cache  *lru.Cache[uint32, []byte]
	render *diff.Engine
	logger *zap.Logger
	now    func() time.Time
	closed bool
}

// Snapshot is an immutable view of the history handed to presentation code.
type Snapshot struct {
	StorePath   string          `json:"store_path"`
	TrackedFile string          `json:"tracked_file"`
	Current     store.Version   `json:"current"`
	Versions    []store.Version `json:"versions"`
	Dirty       bool            `json:"dirty"`
	// DirtyError is set when the tracked file could not be read.
	DirtyError string `json:"dirty_error,omitempty"`
}

func newEngine(s *store.Store, opts Options) (*Engine, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[uint32, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Engine{
		store:  s,
		file:   workspace.NewTrackedFile(s.TrackedFile()),
		cache:  cache,
		render: diff.NewEngine(opts.ContextLines),
		logger: opts.Logger.With(zap.String("store", s.Path())),
		now:    time.Now,
	}, nil
}

// Create places trackedFile under version control in a new store at
// storePath. The file's present content becomes the root version.
func Create(storePath, trackedFile string, opts Options) (*Engine, error) {
	absFile, err := filepath.Abs(trackedFile)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", trackedFile, err)
	}

	seed, err := workspace.NewTrackedFile(absFile).Read()
	if err != nil {
		return nil, err
	}

	s, err := store.Create(storePath, absFile, seed, opts.Store)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	e.cache.Add(s.Current().ID, seed)

	e.logger.Info("created store", zap.String("tracked_file", absFile), zap.Int("size", len(seed)))
	return e, nil
}

// Open loads an existing store. current is whatever it was when the store
// was last persisted.
func Open(storePath string, opts Options) (*Engine, error) {
	s, err := store.Open(storePath, opts.Store)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}

	e.logger.Debug("opened store",
		zap.String("tracked_file", s.TrackedFile()),
		zap.Uint32("current", s.Current().ID),
		zap.Int("versions", len(s.Versions())))
	return e, nil
}

func (e *Engine) checkOpen() error {
	if e.closed {
		return apperrors.ErrClosed
	}
	return nil
}

func (e *Engine) StorePath() string {
	return e.store.Path()
}

func (e *Engine) TrackedFile() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file.Path()
}

// Versions returns every version in creation order.
func (e *Engine) Versions() ([]store.Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Versions(), nil
}

func (e *Engine) Current() (store.Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return store.Version{}, err
	}
	return e.store.Current(), nil
}

func (e *Engine) Version(id uint32) (store.Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return store.Version{}, err
	}
	return e.store.Version(id)
}

// Tree returns the nested view of the history rooted at the root version.
func (e *Engine) Tree() (*store.Node, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	var root *store.Node
	err := e.store.View(func(st *store.State) error {
		var err error
		root, err = st.Tree()
		return err
	})
	return root, err
}

// Reconstruct returns the full content of version id.
func (e *Engine) Reconstruct(id uint32) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	var content []byte
	err := e.store.View(func(st *store.State) error {
		var err error
		content, err = e.reconstruct(st, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(content), nil
}

// IsDirty reports whether the tracked file differs from the reconstruction
// of the current version.
func (e *Engine) IsDirty() (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return false, err
	}

	var dirty bool
	err := e.store.View(func(st *store.State) error {
		var err error
		dirty, err = e.isDirty(st)
		return err
	})
	return dirty, err
}

// WorkingDiff renders the uncommitted edits of the tracked file against the
// current version.
func (e *Engine) WorkingDiff() (*diff.DiffResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	content, err := e.file.Read()
	if err != nil {
		return nil, err
	}

	var base []byte
	err = e.store.View(func(st *store.State) error {
		var err error
		base, err = e.reconstruct(st, st.Current)
		return err
	})
	if err != nil {
		return nil, err
	}

	return e.render.Diff(base, content)
}

// Snapshot returns an immutable copy of everything the presentation layer
// renders.
func (e *Engine) Snapshot() (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		StorePath:   e.store.Path(),
		TrackedFile: e.file.Path(),
	}
	content, readErr := e.file.Read()
	if readErr != nil {
		snap.DirtyError = readErr.Error()
	}
	err := e.store.View(func(st *store.State) error {
		if readErr == nil {
			expected, err := e.reconstruct(st, st.Current)
			if err != nil {
				return err
			}
			snap.Dirty = !bytes.Equal(content, expected)
		}
		snap.Versions = make([]store.Version, len(st.Versions))
		for i, v := range st.Versions {
			snap.Versions[i] = v.Clone()
			if v.ID == st.Current {
				snap.Current = snap.Versions[i]
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Commit records the tracked file as a new child of the current version and
// makes it current. An unchanged file is not an error: nothing is created
// and the current version is returned.
func (e *Engine) Commit() (store.Version, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return store.Version{}, err
	}

	content, err := e.file.Read()
	if err != nil {
		return store.Version{}, err
	}

	next := e.store.State()
	base, err := e.reconstruct(next, next.Current)
	if err != nil {
		return store.Version{}, err
	}

	if bytes.Equal(base, content) {
		cur, _ := next.Find(next.Current)
		e.logger.Debug("nothing to commit", zap.Uint32("current", cur.ID))
		return cur, nil
	}
	if next.NextID == math.MaxUint32 {
		return store.Version{}, apperrors.ValidationError("version ids exhausted")
	}

	d, err := diff.Compute(base, content)
	if err != nil {
		return store.Version{}, fmt.Errorf("computing difference: %w", err)
	}

	v := store.Version{
		ID:         next.NextID,
		Base:       next.Current,
		Name:       fmt.Sprintf("Version %d", next.NextID),
		Date:       e.now().UTC(),
		Difference: d,
	}
	next.Versions = append(next.Versions, v)
	next.NextID++
	next.Current = v.ID

	if err := e.store.Replace(next); err != nil {
		return store.Version{}, fmt.Errorf("persisting commit: %w", err)
	}
	e.cache.Add(v.ID, content)

	e.logger.Info("committed version",
		zap.Uint32("id", v.ID),
		zap.Uint32("base", v.Base),
		zap.Int("deletions", len(d.Deletions)),
		zap.Int("insertions", len(d.Insertions)))
	return v.Clone(), nil
}

// Checkout makes id current and overwrites the tracked file with its
// content. With discard false a dirty tracked file fails the call with
// UncommittedChanges and nothing is modified.
func (e *Engine) Checkout(id uint32, discard bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	next := e.store.State()
	if next.Index(id) < 0 {
		return apperrors.UnknownVersion(id)
	}

	if !discard {
		dirty, err := e.isDirty(next)
		if err != nil {
			return err
		}
		if dirty {
			return apperrors.ErrUncommittedChanges
		}
	}

	target, err := e.reconstruct(next, id)
	if err != nil {
		return err
	}

	from := next.Current
	next.Current = id
	if err := e.writeAndPersist(next, target); err != nil {
		return fmt.Errorf("checking out version %d: %w", id, err)
	}

	e.logger.Info("checked out version",
		zap.Uint32("from", from),
		zap.Uint32("to", id),
		zap.Bool("discard", discard))
	return nil
}

// Rename sets the name of the current version. Surrounding whitespace is
// trimmed; a blank name fails with EmptyName.
func (e *Engine) Rename(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.ErrEmptyName
	}

	next := e.store.State()
	i := next.Index(next.Current)
	old := next.Versions[i].Name
	next.Versions[i].Name = name

	if err := e.store.Replace(next); err != nil {
		return fmt.Errorf("persisting rename: %w", err)
	}

	e.logger.Info("renamed version",
		zap.Uint32("id", next.Current),
		zap.String("from", old),
		zap.String("to", name))
	return nil
}

// Delete removes the current version. Its children are re-parented to its
// base with differences recomputed so their content is unchanged, its base
// becomes current and the tracked file is reset to the base's content.
func (e *Engine) Delete() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	next := e.store.State()
	victim, _ := next.Find(next.Current)
	if victim.IsRoot() {
		return apperrors.ErrCannotDeleteRoot
	}

	parent := victim.Base
	parentContent, err := e.reconstruct(next, parent)
	if err != nil {
		return err
	}

	var reparented []uint32
	for i, v := range next.Versions {
		if v.Base != victim.ID || v.IsRoot() {
			continue
		}
		childContent, err := e.reconstruct(next, v.ID)
		if err != nil {
			return err
		}
		d, err := diff.Compute(parentContent, childContent)
		if err != nil {
			return fmt.Errorf("rebasing version %d: %w", v.ID, err)
		}
		next.Versions[i].Base = parent
		next.Versions[i].Difference = d
		reparented = append(reparented, v.ID)
	}

	idx := next.Index(victim.ID)
	next.Versions = append(next.Versions[:idx], next.Versions[idx+1:]...)
	next.Current = parent

	if err := e.writeAndPersist(next, parentContent); err != nil {
		return fmt.Errorf("deleting version %d: %w", victim.ID, err)
	}
	e.cache.Remove(victim.ID)

	e.logger.Info("deleted version",
		zap.Uint32("id", victim.ID),
		zap.Uint32("current", parent),
		zap.Any("reparented", reparented))
	return nil
}

// Rollback discards uncommitted edits by rewriting the tracked file with the
// current version's content.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	var content []byte
	err := e.store.View(func(st *store.State) error {
		var err error
		content, err = e.reconstruct(st, st.Current)
		return err
	})
	if err != nil {
		return err
	}

	if err := e.file.Write(content); err != nil {
		return err
	}

	e.logger.Info("rolled back tracked file", zap.String("path", e.file.Path()))
	return nil
}

// SetTrackedFile rebinds the store to another existing file. Versions, the
// current pointer and the file contents are untouched.
func (e *Engine) SetTrackedFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", path, err)
	}
	file := workspace.NewTrackedFile(abs)
	if !file.Exists() {
		return apperrors.NotFound(fmt.Sprintf("tracked file %s is missing or not a regular file", abs), nil)
	}
	if err := e.store.SetTrackedFile(abs); err != nil {
		return err
	}

	old := e.file.Path()
	e.file = file
	e.logger.Info("changed tracked file", zap.String("from", old), zap.String("to", abs))
	return nil
}

// Close releases the store. Further calls fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.cache.Purge()
	return e.store.Close()
}

// writeAndPersist overwrites the tracked file and persists next. If the
// persist fails the previous file content is restored.
func (e *Engine) writeAndPersist(next *store.State, content []byte) error {
	previous, readErr := e.file.Read()

	if err := e.file.Write(content); err != nil {
		return err
	}

	if err := e.store.Replace(next); err != nil {
		if readErr == nil {
			if restoreErr := e.file.Write(previous); restoreErr != nil {
				e.logger.Error("restoring tracked file after failed persist",
					zap.String("path", e.file.Path()),
					zap.Error(restoreErr))
			}
		}
		return err
	}
	return nil
}

func (e *Engine) isDirty(st *store.State) (bool, error) {
	content, err := e.file.Read()
	if err != nil {
		return false, err
	}
	expected, err := e.reconstruct(st, st.Current)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(content, expected), nil
}
