package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesScratchDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "scratch")
	e, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, e.ScratchDir())
	assert.DirExists(t, dir)
}

func TestDestroyRemovesScratchAndIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "scratch")
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.bin"), []byte("x"), 0o644))

	require.NoError(t, e.Destroy(context.Background()))
	assert.NoDirExists(t, dir)

	// Second destroy is a no-op even though the dir is gone.
	require.NoError(t, e.Destroy(context.Background()))
}
