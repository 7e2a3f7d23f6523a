package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/go-fhir-auth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.NewFileSystemStore(dir)

	binary := &auth.Binary{ResourceBase: auth.ResourceBase{ID: "B1"}}
	binary.URL = auth.BinaryStorageKey("B1", "v1")

	t.Run("round trip", func(t *testing.T) {
		n, err := store.WriteBinary(ctx, binary, strings.NewReader("scan data"))
		require.NoError(t, err)
		assert.Equal(t, int64(9), n)

		_, err = os.Stat(filepath.Join(dir, "binary", "B1", "v1"))
		require.NoError(t, err)

		var out bytes.Buffer
		n, err = store.ReadBinary(ctx, binary, &out)
		require.NoError(t, err)
		assert.Equal(t, int64(9), n)
		assert.Equal(t, "scan data", out.String())
	})

	t.Run("overwrite leaves no temp files", func(t *testing.T) {
		_, err := store.WriteBinary(ctx, binary, strings.NewReader("v2"))
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(dir, "binary", "B1"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "v1", entries[0].Name())
	})

	t.Run("missing content", func(t *testing.T) {
		missing := &auth.Binary{ResourceBase: auth.ResourceBase{ID: "B2"}}
		_, err := store.ReadBinary(ctx, missing, &bytes.Buffer{})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeNotFound))
	})

	t.Run("key escaping the base directory", func(t *testing.T) {
		escaping := &auth.Binary{ResourceBase: auth.ResourceBase{ID: "B3"}, URL: "../../etc/passwd"}
		_, err := store.WriteBinary(ctx, escaping, strings.NewReader("x"))
		assert.True(t, auth.IsOutcome(err, auth.OutcomeValidation))

		_, err = store.ReadBinary(ctx, escaping, &bytes.Buffer{})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeValidation))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.ReadBinary(cancelled, binary, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
