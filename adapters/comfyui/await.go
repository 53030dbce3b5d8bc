package comfyui

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imagyn/domain/core"
)

// JobState tracks a submitted job.
type JobState string

const (
	JobSubmitted      JobState = "submitted"
	JobWaiting        JobState = "waiting"
	JobCompleted      JobState = "completed"
	JobTimedOut       JobState = "timed_out"
	JobConnectionLost JobState = "connection_lost"
)

// IsTerminal reports whether the job will not change state again.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobTimedOut || s == JobConnectionLost
}

// Job is one submitted graph.
type Job struct {
	ID          core.JobID
	ClientID    core.ClientID
	State       JobState
	SubmittedAt time.Time
}

// AwaitCompletion subscribes to the event channel and waits for the job's terminal
// event, then fetches its history. Events published before the subscription are
// not seen; Execute subscribes before submitting.
func (c *Client) AwaitCompletion(ctx context.Context, job *Job, overall time.Duration) (*ExecutionRecord, error) {
	stream, err := c.events.Subscribe(ctx, c.clientID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return c.await(ctx, stream, job, overall)
}

// await runs two timers: the per-receive timer only loops, the overall timer ends the wait.
func (c *Client) await(ctx context.Context, stream EventStream, job *Job, overall time.Duration) (*ExecutionRecord, error) {
	job.State = JobWaiting
	logger := c.logger.With(zap.String("job_id", job.ID.String()))

	deadline := time.NewTimer(overall)
	defer deadline.Stop()
	idle := time.NewTimer(c.receiveTimeout)
	defer idle.Stop()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-deadline.C:
			job.State = JobTimedOut
			logger.Warn("Job did not complete in time", zap.Duration("timeout", overall))
			return nil, fmt.Errorf("%w: job %s after %s", core.ErrTimedOut, job.ID, overall)

		case <-idle.C:
			logger.Debug("No event received, still waiting", zap.Duration("receive_timeout", c.receiveTimeout))
			idle.Reset(c.receiveTimeout)

		case ev, ok := <-events:
			if !ok {
				job.State = JobConnectionLost
				logger.Warn("Event channel closed before job completed")
				return nil, fmt.Errorf("%w: job %s", core.ErrConnectionLost, job.ID)
			}
			idle.Reset(c.receiveTimeout)
			if !ev.IsTerminalFor(job.ID) {
				continue
			}
			job.State = JobCompleted
			logger.Info("Job completed", zap.Duration("elapsed", time.Since(job.SubmittedAt)))
			return c.FetchHistory(ctx, job.ID)
		}
	}
}
