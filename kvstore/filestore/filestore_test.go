package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-tenant-session/kvstore/filestore"
	"github.com/jrsteele09/go-tenant-session/kvstore/kvstoretest"
	"github.com/stretchr/testify/require"
)

func TestPlainFileStore(t *testing.T) {
	fs, err := filestore.New(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	kvstoretest.Run(t, fs)
}

func TestEncryptedFileStore(t *testing.T) {
	fs, err := filestore.New(filepath.Join(t.TempDir(), "session.json"), filestore.WithSecret("correct horse"))
	require.NoError(t, err)
	kvstoretest.Run(t, fs)
}

func TestEncryptedFileHidesValues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	fs, err := filestore.New(path, filestore.WithSecret("s3cret"))
	require.NoError(t, err)
	require.NoError(t, fs.Set(ctx, "refreshToken", "very-secret-refresh-token"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "very-secret-refresh-token")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := filestore.New(path, filestore.WithSecret("s3cret"))
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "refreshToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "very-secret-refresh-token", v)

	wrong, err := filestore.New(path, filestore.WithSecret("guess"))
	require.NoError(t, err)
	_, _, err = wrong.Get(ctx, "refreshToken")
	require.ErrorIs(t, err, filestore.ErrDecrypt)

	plain, err := filestore.New(path)
	require.NoError(t, err)
	_, _, err = plain.Get(ctx, "refreshToken")
	require.ErrorIs(t, err, filestore.ErrDecrypt)
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	fs, err := filestore.New(path)
	require.NoError(t, err)
	_, _, err = fs.Get(context.Background(), "accessToken")
	require.Error(t, err)
}

func TestEmptyPath(t *testing.T) {
	_, err := filestore.New("")
	require.Error(t, err)
}
