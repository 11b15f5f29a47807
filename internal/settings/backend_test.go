package settings

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBackendFromDSN(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		dsn  string
		want any
	}{
		{dsn: "", want: &MemoryBackend{}},
		{dsn: "memory://", want: &MemoryBackend{}},
		{dsn: "file://" + filepath.Join(dir, "s.json"), want: &FileBackend{}},
		{dsn: filepath.Join(dir, "plain.json"), want: &FileBackend{}},
		{dsn: "postgres://localhost/dupeguard", want: &SQLBackend{}},
		{dsn: "sqlite://" + filepath.Join(dir, "s.db"), want: &SQLBackend{}},
	}
	for _, tc := range cases {
		backend, err := BuildBackendFromDSN(tc.dsn)
		require.NoError(t, err, tc.dsn)
		assert.IsType(t, tc.want, backend, tc.dsn)
	}
}

func TestBuildBackendFromDSNFilePath(t *testing.T) {
	backend, err := BuildBackendFromDSN("file:///var/lib/dupeguard/settings.json")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dupeguard/settings.json", backend.(*FileBackend).Path())
}

func TestBuildBackendFromDSNErrors(t *testing.T) {
	_, err := BuildBackendFromDSN("mysql://localhost/db")
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = BuildBackendFromDSN("ftp://example.com/settings")
	assert.Error(t, err)
}

func TestRegisteredBackendFactoryWins(t *testing.T) {
	sentinel := errors.New("custom factory called")
	RegisterBackendFactory("Custom", func(dsn string) (Backend, error) {
		assert.Equal(t, "custom://anything", dsn)
		return nil, sentinel
	})
	_, err := BuildBackendFromDSN("custom://anything")
	assert.ErrorIs(t, err, sentinel)
}
