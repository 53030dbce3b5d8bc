package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	"imagyn/ports"
)

const (
	imagesDir    = "images"
	metadataFile = "metadata.json"

	defaultExtension = "png"

	MinListLimit = 1
	MaxListLimit = 50
)

var _ ports.ArtifactStore = (*Store)(nil)

// Store persists artifacts under root/images and mirrors its index to
// root/metadata.json. Every mutation rewrites the whole index while holding mu.
type Store struct {
	root   string
	mu     sync.Mutex
	index  map[core.ArtifactID]generation.Record
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for creation timestamps and filenames.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates the directory layout and loads an existing index. An unreadable
// index is logged and replaced by an empty one.
func Open(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, core.NewConfigurationError("output folder is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, core.NewStorageError("resolve output folder", err)
	}

	s := &Store{
		root:   abs,
		index:  make(map[core.ArtifactID]generation.Record),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Join(abs, imagesDir), 0o755); err != nil {
		return nil, core.NewStorageError("create images directory", err)
	}
	s.load()
	return s, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string { return s.root }

func (s *Store) indexPath() string { return filepath.Join(s.root, metadataFile) }

func (s *Store) load() {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("Failed to read artifact index, starting empty", zap.Error(err))
		return
	}

	var index map[core.ArtifactID]generation.Record
	if err := json.Unmarshal(data, &index); err != nil {
		s.logger.Warn("Artifact index is corrupt, starting empty", zap.String("path", s.indexPath()), zap.Error(err))
		return
	}
	for id, rec := range index {
		rec.ID = id
		rec.InlineData = ""
		s.index[id] = rec
	}
	s.logger.Info("Loaded artifact index", zap.Int("records", len(s.index)))
}

// persist rewrites the index. Callers hold mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return core.NewStorageError("encode index", err)
	}
	if err := writeFileAtomic(s.indexPath(), data, 0o644); err != nil {
		return core.NewStorageError("write index", err)
	}
	return nil
}

// Store writes the bytes, then records and persists the metadata. A failure
// after the file write leaves an orphaned file, never a dangling index entry.
func (s *Store) Store(ctx context.Context, data []byte, meta generation.Metadata, includeInline bool) (*generation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := core.ArtifactID(core.NewID())
	created := s.now().UTC()
	filename := fmt.Sprintf("%s_%s.%s", created.Format(core.FileStampLayout), core.ID(id).Short(8), extensionFor(data))
	path := filepath.Join(s.root, imagesDir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, core.NewStorageError("write image", err)
	}

	rec := generation.Record{
		ID:           id,
		AbsolutePath: path,
		Metadata:     meta,
		CreatedAt:    core.NewTimestamp(created),
	}

	s.mu.Lock()
	s.index[id] = rec
	err := s.persist()
	if err != nil {
		delete(s.index, id)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stored artifact", zap.String("id", id.String()), zap.String("path", path), zap.Int("bytes", len(data)))
	if includeInline {
		rec.InlineData = base64.StdEncoding.EncodeToString(data)
	}
	return &rec, nil
}

// Get looks up a record. found is false for unknown ids, and for records whose
// backing file is gone when inline data was requested.
func (s *Store) Get(ctx context.Context, id core.ArtifactID, includeInline bool) (*generation.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	rec, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	if includeInline {
		data, err := os.ReadFile(rec.AbsolutePath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, core.NewStorageError("read image", err)
		}
		rec.InlineData = base64.StdEncoding.EncodeToString(data)
	}
	return &rec, true, nil
}

// ClampLimit bounds a listing size to [MinListLimit, MaxListLimit].
func ClampLimit(limit int) int {
	if limit < MinListLimit {
		return MinListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// ListRecent returns up to limit records, newest first. Ties on created_at
// are broken by id.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]generation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	s.mu.Lock()
	records := make([]generation.Record, 0, len(s.index))
	for _, rec := range s.index {
		records = append(records, rec)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes the record and, best-effort, its backing file. It reports
// false for unknown ids.
func (s *Store) Delete(ctx context.Context, id core.ArtifactID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[id]
	if !ok {
		return false, nil
	}
	if err := os.Remove(rec.AbsolutePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove artifact file", zap.String("id", id.String()), zap.Error(err))
	}

	delete(s.index, id)
	if err := s.persist(); err != nil {
		s.index[id] = rec
		return false, err
	}
	s.logger.Info("Deleted artifact", zap.String("id", id.String()))
	return true, nil
}

// Stats sums the sizes of existing backing files and summarizes generation times.
func (s *Store) Stats(ctx context.Context) (generation.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return generation.StorageStats{}, err
	}

	s.mu.Lock()
	records := make([]generation.Record, 0, len(s.index))
	for _, rec := range s.index {
		records = append(records, rec)
	}
	s.mu.Unlock()

	out := generation.StorageStats{
		TotalCount: len(records),
		RootPath:   s.root,
	}
	durations := make(stats.Float64Data, 0, len(records))
	for _, rec := range records {
		durations = append(durations, rec.Metadata.GenerationTimeSeconds)
		info, err := os.Stat(rec.AbsolutePath)
		if err != nil {
			continue
		}
		out.TotalBytes += info.Size()
	}
	mb, _ := stats.Round(float64(out.TotalBytes)/(1024*1024), 2)
	out.TotalMB = mb

	if len(durations) > 0 {
		if mean, err := durations.Mean(); err == nil {
			out.MeanGenerationSeconds, _ = stats.Round(mean, 2)
		}
		if median, err := durations.Median(); err == nil {
			out.MedianGenerationSeconds, _ = stats.Round(median, 2)
		}
	}
	return out, nil
}

// CleanupMissing drops index entries whose backing file no longer exists and
// returns how many were removed.
func (s *Store) CleanupMissing(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.index {
		if _, err := os.Stat(rec.AbsolutePath); errors.Is(err, fs.ErrNotExist) {
			delete(s.index, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	s.logger.Info("Removed index entries with missing files", zap.Int("removed", removed))
	return removed, nil
}

// extensionFor sniffs the image type, falling back to png.
func extensionFor(data []byte) string {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return defaultExtension
	}
	ext := strings.TrimPrefix(mtype.Extension(), ".")
	if ext == "" {
		return defaultExtension
	}
	return ext
}
