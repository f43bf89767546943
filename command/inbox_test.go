package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInbox(t *testing.T) *FileInbox {
	t.Helper()
	return NewFileInbox(filepath.Join(t.TempDir(), "command.json"))
}

func TestReadAbsentAndEmpty(t *testing.T) {
	t.Parallel()

	in := newInbox(t)
	cmd, err := in.Read()
	require.NoError(t, err)
	assert.Nil(t, cmd)

	require.NoError(t, os.WriteFile(in.Path, []byte("  \n"), 0o644))
	cmd, err = in.Read()
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestWriteRead(t *testing.T) {
	t.Parallel()

	in := NewFileInbox(filepath.Join(t.TempDir(), "nested", "command.json"))
	require.NoError(t, in.Write(Command{Name: PauseNewEntries, Pause: true}))

	cmd, err := in.Read()
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, PauseNewEntries, cmd.Name)
	assert.True(t, cmd.Pause)
	assert.False(t, cmd.Timestamp.IsZero())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(in.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConsumeClears(t *testing.T) {
	t.Parallel()

	in := newInbox(t)
	require.NoError(t, in.Write(Command{Name: CloseAll}))

	var seen []Name
	require.NoError(t, in.Consume(func(cmd Command, err error) {
		require.NoError(t, err)
		seen = append(seen, cmd.Name)
	}))
	assert.Equal(t, []Name{CloseAll}, seen)

	data, err := os.ReadFile(in.Path)
	require.NoError(t, err)
	assert.Empty(t, data)

	// nothing pending: fn not called
	require.NoError(t, in.Consume(func(Command, error) { t.Fatal("unexpected command") }))
}

func TestConsumeClearsMalformed(t *testing.T) {
	t.Parallel()

	in := newInbox(t)
	require.NoError(t, os.WriteFile(in.Path, []byte(`{"command":`), 0o644))

	var readErr error
	require.NoError(t, in.Consume(func(_ Command, err error) { readErr = err }))
	assert.ErrorIs(t, readErr, ErrMalformed)

	cmd, err := in.Read()
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestConsumeClearsWhenHandlerPanics(t *testing.T) {
	t.Parallel()

	in := newInbox(t)
	require.NoError(t, in.Write(Command{Name: CloseAll}))

	assert.Panics(t, func() {
		_ = in.Consume(func(Command, error) { panic("handler blew up") })
	})

	cmd, err := in.Read()
	require.NoError(t, err)
	assert.Nil(t, cmd)

	// the lock was released
	require.NoError(t, in.Write(Command{Name: PauseNewEntries, Pause: true}))
	cmd, err = in.Read()
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, PauseNewEntries, cmd.Name)
}

func TestClearMissingFile(t *testing.T) {
	t.Parallel()

	assert.NoError(t, newInbox(t).Clear())
}
