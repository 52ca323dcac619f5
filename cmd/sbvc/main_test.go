package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "sbvc/internal/errors"
	"sbvc/internal/history"
	"sbvc/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type cli struct {
	dir   string
	file  string
	store string
}

func setupCLI(t *testing.T, seed string) *cli {
	t.Helper()
	color.NoColor = true
	t.Setenv("SBVC_LOG_LEVEL", "error")

	dir := t.TempDir()
	c := &cli{
		dir:   dir,
		file:  filepath.Join(dir, "notes.txt"),
		store: filepath.Join(dir, "notes.sbvc"),
	}
	require.NoError(t, os.WriteFile(c.file, []byte(seed), 0644))
	return c
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{
		"--config", filepath.Join(c.dir, "absent.yaml"),
		"--store", c.store,
	}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (c *cli) write(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(c.file, []byte(content), 0644))
}

func (c *cli) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(c.file)
	require.NoError(t, err)
	return string(data)
}

func TestCLI_Workflow(t *testing.T) {
	c := setupCLI(t, "a\n")

	out, err := c.run(t, "new", c.file)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking "+c.file)

	_, err = c.run(t, "new", c.file)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	out, err = c.run(t, "commit")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to commit")

	c.write(t, "a\nb\n")
	out, err = c.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "uncommitted changes")

	out, err = c.run(t, "diff")
	require.NoError(t, err)
	assert.Contains(t, out, "+ b")
	assert.Contains(t, out, "1 insertion(s)")

	out, err = c.run(t, "commit")
	require.NoError(t, err)
	assert.Contains(t, out, "On version 2: Version 2")

	out, err = c.run(t, "rename", "with b")
	require.NoError(t, err)
	assert.Contains(t, out, "with b")

	out, err = c.run(t, "show", "1")
	require.NoError(t, err)
	assert.Equal(t, "a\n", out)

	out, err = c.run(t, "checkout", "1")
	require.NoError(t, err)
	assert.Equal(t, "a\n", c.read(t))

	c.write(t, "a\nc\n")
	_, err = c.run(t, "commit")
	require.NoError(t, err)

	out, err = c.run(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "Initial version")
	assert.Contains(t, out, "with b")
	assert.Contains(t, out, "Version 3")

	out, err = c.run(t, "tree")
	require.NoError(t, err)
	assert.Equal(t, "1 Initial version\n├── 2 with b\n└── 3 Version 3 (current)\n", out)

	c.write(t, "scratch\n")
	_, err = c.run(t, "checkout", "2")
	assert.ErrorIs(t, err, apperrors.ErrUncommittedChanges)
	assert.Equal(t, "scratch\n", c.read(t))

	_, err = c.run(t, "rollback")
	require.NoError(t, err)
	assert.Equal(t, "a\nc\n", c.read(t))

	_, err = c.run(t, "delete")
	require.NoError(t, err)
	assert.Equal(t, "a\n", c.read(t))

	_, err = c.run(t, "delete")
	assert.ErrorIs(t, err, apperrors.ErrCannotDeleteRoot)

	c.write(t, "dirty\n")
	_, err = c.run(t, "checkout", "--discard", "2")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", c.read(t))

	_, err = c.run(t, "checkout", "nope")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCLI_SetFile(t *testing.T) {
	c := setupCLI(t, "a\n")
	_, err := c.run(t, "new", c.file)
	require.NoError(t, err)

	other := filepath.Join(c.dir, "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("a\n"), 0644))

	out, err := c.run(t, "set-file", other)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking "+other)
	assert.Contains(t, out, "no uncommitted changes")
}

func TestCLI_BadgerBackend(t *testing.T) {
	c := setupCLI(t, "a\n")
	c.store = filepath.Join(c.dir, "notes.db")

	_, err := c.run(t, "--backend", "badger", "new", c.file)
	require.NoError(t, err)

	c.write(t, "b\n")
	out, err := c.run(t, "--backend", "badger", "commit")
	require.NoError(t, err)
	assert.Contains(t, out, "On version 2")

	info, err := os.Stat(c.store)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPrintTree(t *testing.T) {
	color.NoColor = true
	st := &store.State{
		TrackedFile: "/f",
		Current:     4,
		NextID:      5,
		Versions: []store.Version{
			{ID: 1, Base: 1, Name: "Initial version", Date: time.Unix(0, 0)},
			{ID: 2, Base: 1, Name: "a", Date: time.Unix(0, 0)},
			{ID: 3, Base: 2, Name: "b", Date: time.Unix(0, 0)},
			{ID: 4, Base: 1, Name: "c", Date: time.Unix(0, 0)},
		},
	}
	root, err := st.Tree()
	require.NoError(t, err)

	var buf bytes.Buffer
	printTree(&buf, root, 4)
	assert.Equal(t, ""+
		"1 Initial version\n"+
		"├── 2 a\n"+
		"│   └── 3 b\n"+
		"└── 4 c (current)\n", buf.String())
}

func TestPrintStatus(t *testing.T) {
	color.NoColor = true
	snap := history.Snapshot{
		TrackedFile: "/notes.txt",
		Current:     store.Version{ID: 3, Base: 1, Name: "draft"},
		Dirty:       true,
	}

	var buf bytes.Buffer
	printStatus(&buf, snap)
	assert.Contains(t, buf.String(), "On version 3: draft")
	assert.Contains(t, buf.String(), "uncommitted changes")

	buf.Reset()
	snap.Dirty = false
	snap.DirtyError = "reading /notes.txt: missing"
	printStatus(&buf, snap)
	assert.Contains(t, buf.String(), "! reading /notes.txt: missing")
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr("0.0.0.0:8080")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", host)
	assert.Equal(t, 8080, port)

	for _, addr := range []string{"8080", "host:http", "host:70000"} {
		_, _, err := splitAddr(addr)
		assert.Error(t, err, addr)
	}
}

func TestErrorText(t *testing.T) {
	color.NoColor = true
	assert.Contains(t, errorText(apperrors.ErrUncommittedChanges), "--discard")
	assert.Equal(t, "error: "+assert.AnError.Error(), errorText(assert.AnError))
}
