package access

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "grants.db")
	store, err := NewStore(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestStore_PutGet(t *testing.T) {
	store, _ := newTestStore(t)

	cap := &Capability{
		Path:     "/media/card",
		Token:    []byte{0x01, 0x02, 0x03},
		VolumeID: "abc123",
		IssuedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Put(cap))

	got, err := store.Get("/media/card")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cap.Path, got.Path)
	assert.Equal(t, cap.Token, got.Token)
	assert.Equal(t, cap.VolumeID, got.VolumeID)
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get("/nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_PutOverwrites(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Put(&Capability{
		Path: "/media/card", Token: []byte("old"), VolumeID: "v1", IssuedAt: time.Now(),
	}))
	require.NoError(t, store.Put(&Capability{
		Path: "/media/card", Token: []byte("new"), VolumeID: "v2", IssuedAt: time.Now(),
	}))

	got, err := store.Get("/media/card")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Token)
	assert.Equal(t, "v2", got.VolumeID)
}

func TestStore_ListDeleteClear(t *testing.T) {
	store, _ := newTestStore(t)

	for _, p := range []string{"/media/a", "/media/b", "/backup"} {
		require.NoError(t, store.Put(&Capability{
			Path: p, Token: []byte(p), VolumeID: "v", IssuedAt: time.Now(),
		}))
	}

	caps, err := store.List()
	require.NoError(t, err)
	require.Len(t, caps, 3)
	assert.Equal(t, "/backup", caps[0].Path)

	require.NoError(t, store.Delete("/media/a"))
	caps, err = store.List()
	require.NoError(t, err)
	assert.Len(t, caps, 2)

	require.NoError(t, store.Clear())
	caps, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestStore_SurvivesReopen(t *testing.T) {
	store, dbPath := newTestStore(t)

	require.NoError(t, store.Put(&Capability{
		Path: "/media/card", Token: []byte("tok"), VolumeID: "v1", IssuedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("/media/card")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("tok"), got.Token)
}
