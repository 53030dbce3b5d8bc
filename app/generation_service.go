package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	"imagyn/domain/pipeline"
	"imagyn/ports"
)

// ServiceConfig carries the runtime knobs of the generation service.
type ServiceConfig struct {
	AdaptersEnabled   bool
	MaxConcurrent     int
	GenerationTimeout time.Duration
	HTTPTimeout       time.Duration
	WebsocketTimeout  time.Duration
	WorkflowFile      string
}

// ServerStatus summarizes backend reachability, configuration and storage.
type ServerStatus struct {
	BackendConnected  bool                    `json:"backend_connected"`
	BackendURL        string                  `json:"backend_url"`
	PipelineName      string                  `json:"pipeline_name"`
	PipelineNodes     int                     `json:"pipeline_nodes"`
	WorkflowFile      string                  `json:"workflow_file"`
	AdaptersEnabled   bool                    `json:"adapters_enabled"`
	MaxConcurrent     int                     `json:"max_concurrent_generations"`
	InFlight          int64                   `json:"in_flight"`
	GenerationTimeout string                  `json:"generation_timeout"`
	HTTPTimeout       string                  `json:"http_timeout"`
	WebsocketTimeout  string                  `json:"websocket_timeout"`
	Storage           generation.StorageStats `json:"storage"`
}

// GenerationService runs generation requests end to end: patch, execute, store.
type GenerationService struct {
	template *pipeline.Template
	patcher  *pipeline.Patcher
	backend  ports.RenderBackend
	store    ports.ArtifactStore
	cfg      ServiceConfig
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	logger   *zap.Logger
}

// NewGenerationService wires the service. MaxConcurrent below 1 is treated as 1.
func NewGenerationService(
	template *pipeline.Template,
	patcher *pipeline.Patcher,
	backend ports.RenderBackend,
	store ports.ArtifactStore,
	cfg ServiceConfig,
	logger *zap.Logger,
) *GenerationService {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if patcher == nil {
		patcher = pipeline.NewPatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		template: template,
		patcher:  patcher,
		backend:  backend,
		store:    store,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   logger,
	}
}

// Generate produces one image and stores it with inline data.
func (s *GenerationService) Generate(ctx context.Context, req generation.Request) (*generation.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.WithDefaults()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	s.inFlight.Add(1)
	defer func() {
		s.inFlight.Add(-1)
		s.sem.Release(1)
	}()

	if !s.backend.CheckConnection(ctx) {
		return nil, fmt.Errorf("%w: %s", core.ErrConnectivity, s.backend.BaseURL())
	}

	req.AdaptersEnabled = s.cfg.AdaptersEnabled
	if len(req.Adapters) > 0 && !s.cfg.AdaptersEnabled {
		s.logger.Warn("Style adapters are disabled, generating without them", zap.Strings("requested", req.Adapters))
		req.Adapters = nil
	}

	var catalog []string
	if req.AdaptersEnabled && len(req.Adapters) > 0 && s.template.HasRole(pipeline.RoleAdapterLoader) {
		catalog = generation.CatalogNames(s.backend.ListCatalog(ctx))
	}

	patched := s.patcher.Patch(s.template, req, catalog)
	s.logger.Info("Generating image",
		zap.String("prompt", truncate(req.Prompt, 100)),
		zap.Uint32("seed", patched.Seed),
		zap.Int("width", req.Width),
		zap.Int("height", req.Height),
		zap.String("adapter", patched.Adapter))

	exec, err := s.backend.Execute(ctx, patched.Graph, s.cfg.GenerationTimeout)
	if err != nil {
		s.logger.Error("Generation failed", zap.Error(err), zap.Bool("recoverable", core.IsRecoverable(err)))
		return nil, err
	}

	adaptersUsed := []string{}
	if patched.Adapter != "" {
		adaptersUsed = append(adaptersUsed, patched.Adapter)
	}
	meta := generation.Metadata{
		Prompt:                req.Prompt,
		NegativePrompt:        req.NegativePrompt,
		AdaptersUsed:          adaptersUsed,
		GenerationTimeSeconds: exec.Elapsed.Seconds(),
		Seed:                  patched.Seed,
		Width:                 req.Width,
		Height:                req.Height,
		Steps:                 patched.Steps(),
		CFG:                   patched.CFG(),
		PipelineName:          s.template.Name(),
	}

	rec, err := s.store.Store(ctx, exec.Data, meta, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Generation complete",
		zap.String("id", rec.ID.String()),
		zap.String("job_id", exec.JobID.String()),
		zap.Duration("elapsed", exec.Elapsed))
	return rec, nil
}

// Edit re-generates a stored image with a new prompt, keeping its dimensions
// and drawing a fresh seed.
func (s *GenerationService) Edit(ctx context.Context, req generation.EditRequest) (*generation.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	original, found, err := s.store.Get(ctx, req.ImageID, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, req.ImageID)
	}

	return s.Generate(ctx, generation.Request{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          original.Metadata.Width,
		Height:         original.Metadata.Height,
		Adapters:       req.Adapters,
	})
}

// ListAdapters returns the backend's adapter catalog.
func (s *GenerationService) ListAdapters(ctx context.Context) ([]generation.AdapterDescriptor, error) {
	if !s.cfg.AdaptersEnabled {
		return nil, core.ErrAdaptersDisabled
	}
	if !s.backend.CheckConnection(ctx) {
		return nil, fmt.Errorf("%w: %s", core.ErrConnectivity, s.backend.BaseURL())
	}
	return s.backend.ListCatalog(ctx), nil
}

// Lookup returns one stored record.
func (s *GenerationService) Lookup(ctx context.Context, id core.ArtifactID, includeInline bool) (*generation.Record, error) {
	rec, found, err := s.store.Get(ctx, id, includeInline)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, id)
	}
	return rec, nil
}

// History lists recent records, newest first.
func (s *GenerationService) History(ctx context.Context, limit int) ([]generation.Record, error) {
	return s.store.ListRecent(ctx, limit)
}

// Delete removes a stored record and its file.
func (s *GenerationService) Delete(ctx context.Context, id core.ArtifactID) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", core.ErrArtifactNotFound, id)
	}
	return nil
}

// Cleanup drops index entries whose files are gone.
func (s *GenerationService) Cleanup(ctx context.Context) (int, error) {
	return s.store.CleanupMissing(ctx)
}

// Status reports backend reachability, configuration and storage statistics.
func (s *GenerationService) Status(ctx context.Context) (*ServerStatus, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &ServerStatus{
		BackendConnected:  s.backend.CheckConnection(ctx),
		BackendURL:        s.backend.BaseURL(),
		PipelineName:      s.template.Name(),
		PipelineNodes:     s.template.Len(),
		WorkflowFile:      s.cfg.WorkflowFile,
		AdaptersEnabled:   s.cfg.AdaptersEnabled,
		MaxConcurrent:     s.cfg.MaxConcurrent,
		InFlight:          s.inFlight.Load(),
		GenerationTimeout: s.cfg.GenerationTimeout.String(),
		HTTPTimeout:       s.cfg.HTTPTimeout.String(),
		WebsocketTimeout:  s.cfg.WebsocketTimeout.String(),
		Storage:           st,
	}, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
