package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

type failingBackend struct {
	MemoryBackend
	saveErr error
}

func (b *failingBackend) Save(context.Context, dupes.Settings) error {
	return b.saveErr
}

func intPtr(v int) *int          { return &v }
func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }

func TestOpenUsesDefaultsForEmptyBackend(t *testing.T) {
	store, err := Open(context.Background(), NewMemoryBackend(), StoreOptions{})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, dupes.DefaultSettings(), store.Get())
}

func TestOpenNormalizesStoredSettings(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), dupes.Settings{SearchDays: 9000, TagName: " "}))

	store, err := Open(context.Background(), backend, StoreOptions{})
	require.NoError(t, err)
	got := store.Get()
	assert.Equal(t, dupes.MaxSearchDays, got.SearchDays)
	assert.Equal(t, dupes.DefaultTagName, got.TagName)
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	backend := NewMemoryBackend()
	store, err := Open(context.Background(), backend, StoreOptions{})
	require.NoError(t, err)

	next, err := store.Update(context.Background(), Patch{SearchDays: intPtr(30), AutoCancel: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 30, next.SearchDays)
	assert.False(t, next.AutoCancel)
	assert.True(t, next.WebhookEnabled)
	assert.Equal(t, dupes.DefaultTagName, next.TagName)
	assert.Equal(t, next, store.Get())

	persisted, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, *persisted)
}

func TestUpdateClampsOutOfRangeDays(t *testing.T) {
	store, err := Open(context.Background(), nil, StoreOptions{})
	require.NoError(t, err)
	next, err := store.Update(context.Background(), Patch{SearchDays: intPtr(0), TagName: stringPtr("")})
	require.NoError(t, err)
	assert.Equal(t, dupes.DefaultSearchDays, next.SearchDays)
	assert.Equal(t, dupes.DefaultTagName, next.TagName)
}

func TestUpdateKeepsCurrentWhenSaveFails(t *testing.T) {
	backend := &failingBackend{saveErr: errors.New("disk full")}
	store, err := Open(context.Background(), backend, StoreOptions{})
	require.NoError(t, err)

	_, err = store.Update(context.Background(), Patch{SearchDays: intPtr(3)})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, dupes.DefaultSearchDays, store.Get().SearchDays)
}

func TestCustomDefaults(t *testing.T) {
	defaults := dupes.Settings{SearchDays: 7, AutoCancel: false, WebhookEnabled: true}
	store, err := Open(context.Background(), nil, StoreOptions{Defaults: &defaults})
	require.NoError(t, err)
	got := store.Get()
	assert.Equal(t, 7, got.SearchDays)
	assert.False(t, got.AutoCancel)
	assert.Equal(t, dupes.DefaultTagName, got.TagName)
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	backend := NewFileBackend(path)

	loaded, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	settings := dupes.DefaultSettings()
	settings.TagColor = "orange"
	require.NoError(t, backend.Save(context.Background(), settings))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err = backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings, *loaded)
}

func TestFileBackendRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileBackend(path).Load(context.Background())
	assert.Error(t, err)
}

func TestStoreReloadsExternalFileEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	backend := NewFileBackend(path)
	backend.debounce = time.Millisecond
	store, err := Open(context.Background(), backend, StoreOptions{})
	require.NoError(t, err)
	defer store.Close()

	require.Eventually(t, func() bool {
		if store.Get().SearchDays == 42 {
			return true
		}
		_ = os.WriteFile(path, []byte(`{"searchDays":42,"tagName":"x","autoCancel":true,"webhookEnabled":true}`), 0o644)
		return false
	}, 3*time.Second, 25*time.Millisecond)
	assert.Equal(t, "x", store.Get().TagName)
}
