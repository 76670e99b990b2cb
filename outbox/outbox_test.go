package outbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPicksLexFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.bin"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.bin"), []byte("a"), 0o644))

	o := New(dir, "", KeepNone)
	path, data, ok, err := o.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "001.bin"), path)
	assert.Equal(t, []byte("a"), data)
}

func TestNextEmptyDir(t *testing.T) {
	dir := t.TempDir()
	o := New(dir, "", KeepNone)
	_, _, ok, err := o.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisposeKeepMoveToSent(t *testing.T) {
	dir := t.TempDir()
	sent := filepath.Join(dir, "sent")
	path := filepath.Join(dir, "001.bin")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	o := New(dir, sent, KeepMoveToSent)
	require.NoError(t, o.Dispose(path, true))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(sent, "001.bin"))
	assert.NoError(t, err)
}

func TestDisposeKeepOnFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "001.bin")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	o := New(dir, "", KeepOnFailure)
	require.NoError(t, o.Dispose(path, false))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveMTCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modem", "20260731-0001")
	require.NoError(t, SaveMT(path, []byte("payload")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}
