package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(root string, chowns *atomic.Int32) *SharedDirProvisioner {
	return NewSharedDirProvisioner(root, "lightdm",
		WithUserLookup(func(string) (int, int, error) { return 1000, 1000, nil }),
		WithGroupLookup(func(string) (int, error) { return 120, nil }),
		WithChown(func(_ string, uid, gid int) error {
			if chowns != nil {
				chowns.Add(1)
			}
			return nil
		}),
	)
}

func TestSharedDirCreatedOnce(t *testing.T) {
	root := t.TempDir()
	var chowns atomic.Int32
	p := newTestProvisioner(root, &chowns)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = p.Ensure("alice")
		}()
	}
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, filepath.Join(root, "alice"), paths[i])
	}
	assert.Equal(t, int32(1), chowns.Load())

	st, err := os.Stat(filepath.Join(root, "alice"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.Equal(t, os.FileMode(0770), st.Mode().Perm())
}

func TestSharedDirOwnership(t *testing.T) {
	var gotUID, gotGID int
	p := NewSharedDirProvisioner(t.TempDir(), "lightdm",
		WithUserLookup(func(string) (int, int, error) { return 1001, 1001, nil }),
		WithGroupLookup(func(string) (int, error) { return 120, nil }),
		WithChown(func(_ string, uid, gid int) error {
			gotUID, gotGID = uid, gid
			return nil
		}),
	)

	_, err := p.Ensure("carol")
	require.NoError(t, err)
	assert.Equal(t, 1001, gotUID)
	assert.Equal(t, 120, gotGID)
}

func TestSharedDirInvalidUsername(t *testing.T) {
	p := newTestProvisioner(t.TempDir(), nil)

	for _, name := range []string{"", "../root", "Alice", "a b", "x/y"} {
		_, err := p.Ensure(name)
		assert.ErrorIs(t, err, ErrInvalidUsername, name)
	}
}

func TestSharedDirPathIsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bob"), nil, 0600))

	_, err := newTestProvisioner(root, nil).Ensure("bob")
	assert.Error(t, err)
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("alice"))
	assert.True(t, ValidUsername("_svc-1"))
	assert.True(t, ValidUsername("host$"))
	assert.False(t, ValidUsername("1abc"))
}
