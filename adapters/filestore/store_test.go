package filestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagyn/domain/core"
	"imagyn/domain/generation"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func sampleMetadata(prompt string) generation.Metadata {
	return generation.Metadata{
		Prompt:                prompt,
		NegativePrompt:        "blurry",
		AdaptersUsed:          []string{"anime.safetensors"},
		GenerationTimeSeconds: 12.5,
		Seed:                  1234,
		Width:                 512,
		Height:                768,
		Steps:                 20,
		CFG:                   3.5,
		PipelineName:          "flux_dev",
	}
}

// steppingClock advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(time.Second)
		return t
	}
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	meta := sampleMetadata("a cat")

	rec, err := s.Store(ctx, pngBytes, meta, true)
	require.NoError(t, err)
	require.NotEmpty(t, rec.InlineData)

	got, found, err := s.Get(ctx, rec.ID, true)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, meta, got.Metadata)

	decoded, err := base64.StdEncoding.DecodeString(got.InlineData)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, decoded)

	onDisk, err := os.ReadFile(got.AbsolutePath)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, onDisk)
}

func TestStoreFilenameLayout(t *testing.T) {
	s := openStore(t, WithClock(func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }))

	rec, err := s.Store(context.Background(), pngBytes, sampleMetadata("x"), false)
	require.NoError(t, err)

	assert.Empty(t, rec.InlineData)
	assert.True(t, filepath.IsAbs(rec.AbsolutePath))
	assert.Equal(t, filepath.Join(s.Root(), "images"), filepath.Dir(rec.AbsolutePath))
	want := fmt.Sprintf("20250304_050607_%s.png", core.ID(rec.ID).Short(8))
	assert.Equal(t, want, filepath.Base(rec.AbsolutePath))
	assert.Equal(t, core.Timestamp("2025-03-04T05:06:07.000000Z"), rec.CreatedAt)
}

func TestStoreFilenameStampIsUTC(t *testing.T) {
	local := time.Date(2025, 3, 4, 2, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	s := openStore(t, WithClock(func() time.Time { return local }))

	rec, err := s.Store(context.Background(), pngBytes, sampleMetadata("x"), false)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(rec.AbsolutePath), "20250303_213000_"))
	assert.Equal(t, core.Timestamp("2025-03-03T21:30:00.000000Z"), rec.CreatedAt)
}

func TestStoreUnknownBytesDefaultToPNG(t *testing.T) {
	assert.Equal(t, "png", extensionFor([]byte("plain text, not an image")))
	assert.Equal(t, "png", extensionFor(pngBytes))
	assert.Equal(t, "jpg", extensionFor([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")))
}

func TestGetUnknownAndMissingFile(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "does-not-exist", false)
	require.NoError(t, err)
	assert.False(t, found)

	rec, err := s.Store(ctx, pngBytes, sampleMetadata("x"), false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.AbsolutePath))

	// Without inline data the record is still served.
	_, found, err = s.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.Get(ctx, rec.ID, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListRecentNewestFirst(t *testing.T) {
	s := openStore(t, WithClock(steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	var prompts []string
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("prompt %d", i)
		prompts = append(prompts, p)
		_, err := s.Store(ctx, pngBytes, sampleMetadata(p), false)
		require.NoError(t, err)
	}

	recent, err := s.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "prompt 4", recent[0].Metadata.Prompt)
	assert.Equal(t, "prompt 3", recent[1].Metadata.Prompt)
	assert.Equal(t, "prompt 2", recent[2].Metadata.Prompt)
	for i := 1; i < len(recent); i++ {
		assert.True(t, recent[i-1].CreatedAt.After(recent[i].CreatedAt))
	}
	for _, rec := range recent {
		assert.Empty(t, rec.InlineData)
	}
}

func TestListRecentClampsLimit(t *testing.T) {
	s := openStore(t, WithClock(steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()
	for i := 0; i < 55; i++ {
		_, err := s.Store(ctx, pngBytes, sampleMetadata("p"), false)
		require.NoError(t, err)
	}

	zero, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, zero, 1)

	big, err := s.ListRecent(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, big, 50)

	assert.Equal(t, 1, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, 50, ClampLimit(51))
}

func TestListRecentTieBreak(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Store(ctx, pngBytes, sampleMetadata("same second"), false)
		require.NoError(t, err)
	}

	first, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	second, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.Greater(t, string(first[i-1].ID), string(first[i].ID))
	}
}

func TestStoreReloadsIndexFromDisk(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := Open(root)
	require.NoError(t, err)
	rec, err := s.Store(ctx, pngBytes, sampleMetadata("persisted"), true)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), rec.ID.String())
	assert.NotContains(t, string(raw), "inline_data")

	reopened, err := Open(root)
	require.NoError(t, err)
	got, found, err := reopened.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.WithoutInline(), *got)
}

func TestOpenWithCorruptIndexStartsEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "metadata.json"), []byte("{not json"), 0o644))

	s, err := Open(root)
	require.NoError(t, err)
	recent, err := s.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec, err := s.Store(ctx, pngBytes, sampleMetadata("x"), false)
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, rec.AbsolutePath)

	_, found, err := s.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteWithMissingFileStillRemovesRecord(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec, err := s.Store(ctx, pngBytes, sampleMetadata("x"), false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.AbsolutePath))

	deleted, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestStatsSkipsMissingFiles(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	kept, err := s.Store(ctx, pngBytes, sampleMetadata("kept"), false)
	require.NoError(t, err)
	gone, err := s.Store(ctx, pngBytes, sampleMetadata("gone"), false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone.AbsolutePath))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCount)
	assert.Equal(t, int64(len(pngBytes)), st.TotalBytes)
	assert.Equal(t, s.Root(), st.RootPath)
	assert.Equal(t, 12.5, st.MeanGenerationSeconds)
	assert.Equal(t, 12.5, st.MedianGenerationSeconds)
	assert.FileExists(t, kept.AbsolutePath)
}

func TestStatsEmptyStore(t *testing.T) {
	s := openStore(t)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalCount)
	assert.Zero(t, st.TotalBytes)
	assert.Zero(t, st.MeanGenerationSeconds)
}

func TestCleanupMissing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	kept, err := s.Store(ctx, pngBytes, sampleMetadata("kept"), false)
	require.NoError(t, err)
	gone, err := s.Store(ctx, pngBytes, sampleMetadata("gone"), false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone.AbsolutePath))

	removed, err := s.CleanupMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	recent, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, kept.ID, recent[0].ID)

	removed, err = s.CleanupMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestConcurrentStores(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := s.Store(ctx, pngBytes, sampleMetadata(fmt.Sprintf("p%d", i)), false)
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	reopened, err := Open(s.Root())
	require.NoError(t, err)
	st, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, st.TotalCount)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp."), "leftover temp file %s", e.Name())
	}
}

func TestOpenRequiresRoot(t *testing.T) {
	_, err := Open("  ")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
