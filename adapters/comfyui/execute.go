package comfyui

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imagyn/domain/pipeline"
	"imagyn/ports"
)

// Execute runs a graph to completion and downloads the first produced image.
// The event channel is opened before submission so a fast job cannot finish unseen.
func (c *Client) Execute(ctx context.Context, graph *pipeline.Graph, overall time.Duration) (*ports.Execution, error) {
	started := time.Now()

	stream, err := c.events.Subscribe(ctx, c.clientID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	job, err := c.Submit(ctx, graph)
	if err != nil {
		return nil, err
	}

	record, err := c.await(ctx, stream, job, overall)
	if err != nil {
		return nil, err
	}

	ref, err := FirstImage(record)
	if err != nil {
		return nil, err
	}

	data, err := c.Download(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Downloaded job output",
		zap.String("job_id", job.ID.String()),
		zap.String("filename", ref.Filename),
		zap.Int("bytes", len(data)))

	return &ports.Execution{
		Data:    data,
		JobID:   job.ID,
		Elapsed: time.Since(started),
	}, nil
}
