package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *State {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &State{
		TrackedFile: "/tmp/notes.txt",
		Current:     3,
		NextID:      5,
		Versions: []Version{
			{ID: 1, Base: 1, Name: RootName, Date: now},
			{ID: 2, Base: 1, Name: "Version 2", Date: now},
			{ID: 3, Base: 2, Name: "Version 3", Date: now},
			{ID: 4, Base: 1, Name: "Version 4", Date: now},
		},
	}
}

func TestStateValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *State)
	}{
		{name: "no versions", mutate: func(s *State) { s.Versions = nil }},
		{name: "no tracked file", mutate: func(s *State) { s.TrackedFile = "" }},
		{name: "root not first", mutate: func(s *State) { s.Versions[0].Base = 2 }},
		{name: "second root", mutate: func(s *State) { s.Versions[2].Base = 3 }},
		{name: "id collision", mutate: func(s *State) { s.Versions[2].ID = 2 }},
		{name: "ids out of order", mutate: func(s *State) { s.Versions[1], s.Versions[2] = s.Versions[2], s.Versions[1] }},
		{name: "forward base forms cycle", mutate: func(s *State) { s.Versions[1].Base = 3 }},
		{name: "dangling base", mutate: func(s *State) { s.Versions[3].Base = 9 }},
		{name: "missing current", mutate: func(s *State) { s.Current = 7 }},
		{name: "next id reused", mutate: func(s *State) { s.NextID = 4 }},
		{name: "corrupt difference", mutate: func(s *State) {
			s.Versions[1].Difference = diff.Difference{Deletions: []int{3, 1}}
		}},
	}

	require.NoError(t, testState().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedStore), "got %v", err)
		})
	}
}

func TestStateQueries(t *testing.T) {
	s := testState()

	assert.Equal(t, 2, s.Index(3))
	assert.Equal(t, -1, s.Index(9))
	assert.Equal(t, uint32(1), s.Root().ID)

	children := s.Children(1)
	require.Len(t, children, 2)
	assert.Equal(t, uint32(2), children[0].ID)
	assert.Equal(t, uint32(4), children[1].ID)
	assert.Empty(t, s.Children(3))
}

func TestStateCloneIsDeep(t *testing.T) {
	s := testState()
	s.Versions[1].Difference = diff.Difference{Deletions: []int{0}}

	c := s.Clone()
	c.Versions[1].Name = "changed"
	c.Versions[1].Difference.Deletions[0] = 5
	c.Versions = append(c.Versions, Version{ID: 5, Base: 1})

	assert.Equal(t, "Version 2", s.Versions[1].Name)
	assert.Equal(t, 0, s.Versions[1].Difference.Deletions[0])
	assert.Len(t, s.Versions, 4)
}

func TestTree(t *testing.T) {
	s := testState()

	var order []uint32
	var depths []int
	err := s.Walk(func(v Version, depth int) error {
		order = append(order, v.ID)
		depths = append(depths, depth)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4}, order)
	assert.Equal(t, []int{0, 1, 2, 1}, depths)

	root, err := s.Tree()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), root.Version.ID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, uint32(2), root.Children[0].Version.ID)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, uint32(3), root.Children[0].Children[0].Version.ID)
	assert.Equal(t, 2, root.Children[0].Children[0].Depth)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.sbvc")

	t.Run("Create", func(t *testing.T) {
		s, err := Create(path, "/tmp/notes.txt", []byte("a\nb\n"), Options{})
		require.NoError(t, err)
		defer s.Close()

		cur := s.Current()
		assert.True(t, cur.IsRoot())
		assert.Equal(t, RootName, cur.Name)
		assert.Len(t, cur.Difference.Insertions, 2)

		content, err := diff.Apply(nil, cur.Difference)
		require.NoError(t, err)
		assert.Equal(t, "a\nb\n", string(content))
	})

	t.Run("CreateExisting", func(t *testing.T) {
		_, err := Create(path, "/tmp/notes.txt", nil, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	})

	t.Run("OpenAndReplace", func(t *testing.T) {
		s, err := Open(path, Options{})
		require.NoError(t, err)

		next := s.State()
		next.Versions = append(next.Versions, Version{ID: 2, Base: 1, Name: "Version 2", Date: time.Now().UTC()})
		next.NextID = 3
		next.Current = 2
		require.NoError(t, s.Replace(next))
		require.NoError(t, s.Close())

		reopened, err := Open(path, Options{})
		require.NoError(t, err)
		defer reopened.Close()
		assert.Equal(t, uint32(2), reopened.Current().ID)
		assert.Len(t, reopened.Versions(), 2)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temporary file left behind: %s", e.Name())
		}
	})

	t.Run("ReplaceInvalidKeepsState", func(t *testing.T) {
		s, err := Open(path, Options{})
		require.NoError(t, err)
		defer s.Close()

		next := s.State()
		next.Current = 42
		require.Error(t, s.Replace(next))
		assert.Equal(t, uint32(2), s.Current().ID)
	})

	t.Run("SetTrackedFile", func(t *testing.T) {
		s, err := Open(path, Options{})
		require.NoError(t, err)
		before := s.Current()
		require.NoError(t, s.SetTrackedFile("/tmp/other.txt"))
		require.NoError(t, s.Close())

		s, err = Open(path, Options{})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "/tmp/other.txt", s.TrackedFile())
		assert.Equal(t, before.ID, s.Current().ID)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "missing.sbvc"), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})
}

func TestFileStoreMalformed(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.sbvc")
	s, err := Create(good, "/tmp/notes.txt", []byte("hello\n"), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad header", content: "not-a-store\n{}"},
		{name: "truncated", content: string(data[:len(data)/2])},
		{name: "trailing garbage", content: string(data) + "{}"},
		{name: "unknown field", content: fileHeader + `{"bogus":1}`},
		{name: "empty body", content: fileHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".sbvc")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Open(path, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedStore), "got %v", err)
		})
	}
}

func TestBadgerBackend(t *testing.T) {
	b, err := OpenBadgerBackend("", true)
	require.NoError(t, err)
	defer b.Close()

	empty, err := b.Empty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = b.Load()
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	state := testState()
	state.Versions[1].Difference = diff.Difference{
		Insertions: []diff.Insertion{{Line: 0, Text: []byte("\x00binary\n")}},
	}
	require.NoError(t, b.Save(state))

	loaded, err := b.Load()
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())
	assert.Equal(t, state.TrackedFile, loaded.TrackedFile)
	assert.Equal(t, state.Current, loaded.Current)
	assert.Equal(t, state.NextID, loaded.NextID)
	require.Len(t, loaded.Versions, 4)
	assert.Equal(t, "\x00binary\n", string(loaded.Versions[1].Difference.Insertions[0].Text))

	// Removing a version must drop its key.
	state.Versions = state.Versions[:3]
	require.NoError(t, b.Save(state))
	loaded, err = b.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Versions, 3)
}

func TestBadgerStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.sbvc.d")
	opts := Options{Backend: BackendBadger}

	s, err := Create(path, "/tmp/notes.txt", []byte("seed\n"), opts)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Create(path, "/tmp/notes.txt", nil, opts)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))

	s, err = Open(path, opts)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "/tmp/notes.txt", s.TrackedFile())
	assert.True(t, s.Current().IsRoot())
}

func TestBadgerStoreGrowsPastTransactionLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.sbvc.d")
	opts := Options{Backend: BackendBadger}

	s, err := Create(path, "/tmp/big.txt", []byte("seed\n"), opts)
	require.NoError(t, err)

	// 40 versions of ~300 KB each put the whole history well past what
	// badger accepts in one transaction.
	const commits = 40
	line := []byte(strings.Repeat("x", 300<<10) + "\n")
	for i := 0; i < commits; i++ {
		next := s.State()
		id := next.NextID
		next.Versions = append(next.Versions, Version{
			ID:   id,
			Base: next.Current,
			Name: "big",
			Date: time.Now().UTC(),
			Difference: diff.Difference{
				Deletions:  []int{0},
				Insertions: []diff.Insertion{{Line: 0, Text: line}},
			},
		})
		next.Current = id
		next.NextID++
		require.NoError(t, s.Replace(next), "commit %d", i+1)
	}

	// Rename touches one version.
	next := s.State()
	next.Versions[len(next.Versions)-1].Name = "last"
	require.NoError(t, s.Replace(next))
	require.NoError(t, s.Close())

	s, err = Open(path, opts)
	require.NoError(t, err)
	defer s.Close()

	versions := s.Versions()
	require.Len(t, versions, commits+1)
	assert.Equal(t, "last", s.Current().Name)
	assert.Equal(t, uint32(commits+1), s.Current().ID)

	// A save after Open only writes the delta as well.
	next = s.State()
	next.Versions = next.Versions[:len(next.Versions)-1]
	next.Current = next.Versions[len(next.Versions)-1].ID
	require.NoError(t, s.Replace(next))
	assert.Len(t, s.Versions(), commits)
}

func TestUnknownBackend(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "x"), "/tmp/x", nil, Options{Backend: "tape"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
