package ports

import (
	"context"
	"time"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	"imagyn/domain/pipeline"
)

// Execution is the outcome of one completed render job.
type Execution struct {
	Data    []byte
	JobID   core.JobID
	Elapsed time.Duration
}

// RenderBackend executes patched pipeline graphs on a remote render service
type RenderBackend interface {
	// CheckConnection reports whether the backend answers. It never errors.
	CheckConnection(ctx context.Context) bool
	// ListCatalog returns the installed style adapters, or an empty list on any failure.
	ListCatalog(ctx context.Context) []generation.AdapterDescriptor
	// Execute submits the graph, waits up to overall for completion and downloads the first image.
	Execute(ctx context.Context, graph *pipeline.Graph, overall time.Duration) (*Execution, error)
	// BaseURL identifies the backend in status reports.
	BaseURL() string
}
