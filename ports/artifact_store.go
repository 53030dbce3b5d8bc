package ports

import (
	"context"

	"imagyn/domain/core"
	"imagyn/domain/generation"
)

// ArtifactStore persists generated images and their metadata
type ArtifactStore interface {
	Store(ctx context.Context, data []byte, meta generation.Metadata, includeInline bool) (*generation.Record, error)
	Get(ctx context.Context, id core.ArtifactID, includeInline bool) (*generation.Record, bool, error)
	ListRecent(ctx context.Context, limit int) ([]generation.Record, error)
	Delete(ctx context.Context, id core.ArtifactID) (bool, error)
	Stats(ctx context.Context) (generation.StorageStats, error)
	CleanupMissing(ctx context.Context) (int, error)
}
