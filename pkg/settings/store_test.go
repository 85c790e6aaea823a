package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestStore_SetGet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("proxy.host", "192.168.1.100"))

	value, err := store.Get("proxy.host")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", value)

	// Set replaces an existing value.
	require.NoError(t, store.Set("proxy.host", "10.0.0.5"))

	value, err = store.Get("proxy.host")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", value)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("no.such.key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("units", "mmol/L"))
	require.NoError(t, store.Delete("units"))

	_, err := store.Get("units")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete("units"))
}

func TestStore_All(t *testing.T) {
	store := newTestStore(t)

	all, err := store.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, store.Set("proxy.host", "proxy.local"))
	require.NoError(t, store.Set("poll_interval", "30s"))

	all, err = store.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"proxy.host":    "proxy.local",
		"poll_interval": "30s",
	}, all)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("units", "mg/dL"))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, reopened.Close())
	}()

	value, err := reopened.Get("units")
	require.NoError(t, err)
	assert.Equal(t, "mg/dL", value)
}
