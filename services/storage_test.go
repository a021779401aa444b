package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meu_perito_go/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	storage := NewLocalStorage(dir)
	ctx := context.Background()
	content := "%PDF-1.4 processo"
	key := "documents/2025/03/10/doc.pdf"

	t.Run("put writes the document", func(t *testing.T) {
		stored, err := storage.PutDocument(ctx, key, strings.NewReader(content), int64(len(content)))
		require.NoError(t, err)
		assert.Equal(t, key, stored.Key)
		assert.Equal(t, int64(len(content)), stored.Size)
		assert.Equal(t, "local", stored.Backend)

		leftovers, _ := filepath.Glob(filepath.Join(dir, "documents/2025/03/10/.upload-*"))
		assert.Empty(t, leftovers)
	})

	t.Run("open reads it back", func(t *testing.T) {
		reader, err := storage.OpenDocument(ctx, key)
		require.NoError(t, err)
		defer reader.Close()

		got, _ := io.ReadAll(reader)
		assert.Equal(t, content, string(got))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, storage.RemoveDocument(ctx, key))
		require.NoError(t, storage.RemoveDocument(ctx, key))

		_, err := storage.OpenDocument(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("keys cannot escape the base directory", func(t *testing.T) {
		_, err := storage.PutDocument(ctx, "../outside.pdf", strings.NewReader("x"), 1)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = storage.OpenDocument(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestGenerateSourceDocumentKey(t *testing.T) {
	day := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	key := GenerateSourceDocumentKey("Processo.PDF", day)
	assert.True(t, strings.HasPrefix(key, "documents/2025/03/10/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	assert.NotEqual(t, key, GenerateSourceDocumentKey("Processo.PDF", day))
	assert.True(t, strings.HasSuffix(GenerateSourceDocumentKey("sem-extensao", day), ".pdf"))
}

func TestNewStorageFallsBackToLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{UploadDir: dir}

	storage := NewStorage(context.Background(), cfg, zerolog.Nop())
	local, ok := storage.(*LocalStorage)
	require.True(t, ok)
	assert.Equal(t, dir, local.baseDir)
	assert.True(t, storage.IsConfigured())

	r2 := &R2Storage{bucket: "pericias"}
	assert.False(t, r2.IsConfigured())

	_, err := os.Stat(dir)
	assert.NoError(t, err)
}
