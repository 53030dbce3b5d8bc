package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"imagyn/adapters/comfyui"
	"imagyn/adapters/filestore"
	"imagyn/app"
	"imagyn/domain/pipeline"
	"imagyn/internal/config"
	"imagyn/internal/errors"
	"imagyn/internal/logging"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	Logger *zap.Logger

	// Engine components
	Template *pipeline.Template
	Backend  *comfyui.Client
	Store    *filestore.Store

	// Application services
	Service *app.GenerationService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
	}

	if err := c.initLogging(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logging")
	}
	if err := c.initEngine(); err != nil {
		return nil, err
	}
	c.initServices()

	c.Logger.Info("Container initialized",
		zap.String("pipeline", c.Template.Name()),
		zap.Int("nodes", c.Template.Len()),
		zap.String("backend", c.Backend.BaseURL()),
		zap.String("output", c.Store.Root()),
	)
	return c, nil
}

func (c *Container) initLogging() error {
	logger, err := logging.New(c.Config.Logging.Level, c.Config.Logging.Format)
	if err != nil {
		return err
	}
	c.Logger = logger
	return nil
}

// initEngine loads the pipeline template and opens the backend and storage
func (c *Container) initEngine() error {
	tmpl, err := pipeline.LoadTemplate(c.Config.Pipeline.WorkflowFile)
	if err != nil {
		return errors.Wrapf(err, "failed to load workflow %s", c.Config.Pipeline.WorkflowFile)
	}
	c.Template = tmpl
	if !tmpl.HasRole(pipeline.RoleSampler) {
		c.Logger.Warn("Workflow has no sampler node; seed, steps and cfg will not be applied",
			zap.String("workflow", c.Config.Pipeline.WorkflowFile))
	}

	c.Backend = comfyui.NewClient(comfyui.Options{
		BaseURL:        c.Config.Backend.URL,
		HTTPTimeout:    c.Config.Backend.HTTPTimeout,
		ReceiveTimeout: c.Config.Backend.WebsocketTimeout,
		Logger:         c.Logger.Named("comfyui"),
	})

	store, err := filestore.Open(c.Config.Storage.OutputFolder, filestore.WithLogger(c.Logger.Named("filestore")))
	if err != nil {
		return errors.Wrap(err, "failed to open artifact store")
	}
	c.Store = store
	return nil
}

func (c *Container) initServices() {
	c.Service = app.NewGenerationService(
		c.Template,
		pipeline.NewPatcher(),
		c.Backend,
		c.Store,
		app.ServiceConfig{
			AdaptersEnabled:   c.Config.Generation.EnableAdapters,
			MaxConcurrent:     c.Config.Generation.MaxConcurrent,
			GenerationTimeout: c.Config.Generation.Timeout,
			HTTPTimeout:       c.Config.Backend.HTTPTimeout,
			WebsocketTimeout:  c.Config.Backend.WebsocketTimeout,
			WorkflowFile:      c.Config.Pipeline.WorkflowFile,
		},
		c.Logger.Named("generation"),
	)
}

// Shutdown flushes buffered log entries
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return nil
}
