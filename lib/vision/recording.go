package vision

import (
	"context"
	"fmt"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/region"
)

// recordingCoordinator owns the single recording-session slot and the current
// recording region. It only commands the recorder while the lifecycle is
// running; the Manager passes its running state in because it is the sole
// owner of that state.
type recordingCoordinator struct {
	recorder SessionRecorder
	policy   region.Policy

	current      region.RecordingRegion
	session      SessionKind
	externalPath string
}

func newRecordingCoordinator(recorder SessionRecorder, policy region.Policy) *recordingCoordinator {
	return &recordingCoordinator{
		recorder: recorder,
		policy:   policy,
		current:  region.RecordingUnset,
		session:  SessionNone,
	}
}

// onLifecycleStart opens the internal session in the bucket of the current
// recording region.
func (c *recordingCoordinator) onLifecycleStart(ctx context.Context) error {
	c.session = SessionInternal
	if err := c.recorder.StartInternal(ctx, c.policy.Bucket(c.current)); err != nil {
		return fmt.Errorf("start internal recording: %w", err)
	}
	return nil
}

// onLifecycleStop closes whatever session is active. Idempotent: with no
// active session it issues no recorder call.
func (c *recordingCoordinator) onLifecycleStop(ctx context.Context) error {
	if c.session == SessionNone {
		return nil
	}
	c.session = SessionNone
	c.externalPath = ""
	if err := c.recorder.Stop(ctx); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return nil
}

// onExternalRequested supersedes any internal session with a user-requested
// one. Requires the lifecycle to be running.
func (c *recordingCoordinator) onExternalRequested(ctx context.Context, path string, running bool) error {
	if !running {
		return ErrNotRunning
	}
	if c.session == SessionInternal {
		if err := c.recorder.Stop(ctx); err != nil {
			logger.FromContext(ctx).Error("failed to stop internal session before external start", "err", err)
		}
	}
	if err := c.recorder.StartExternal(ctx, path); err != nil {
		c.session = SessionNone
		c.externalPath = ""
		return err
	}
	c.session = SessionExternal
	c.externalPath = path
	return nil
}

// onExternalStopped ends an external session and, while running, falls back
// to an internal session in the currently stored region bucket.
func (c *recordingCoordinator) onExternalStopped(ctx context.Context, running bool) error {
	if c.session != SessionExternal {
		return nil
	}
	c.externalPath = ""
	if err := c.recorder.Stop(ctx); err != nil {
		logger.FromContext(ctx).Error("failed to stop external session", "err", err)
	}
	if !running {
		c.session = SessionNone
		return nil
	}
	c.session = SessionInternal
	if err := c.recorder.StartInternal(ctx, c.policy.Bucket(c.current)); err != nil {
		return fmt.Errorf("resume internal recording: %w", err)
	}
	return nil
}

// onRegionChanged stores the new recording region and restarts the internal
// session so new data lands in the right bucket. External sessions are never
// interrupted by a region change; the stored region still updates for future
// internal starts. Transitions are keyed on the resolved region, so an
// unchanged region is a no-op.
func (c *recordingCoordinator) onRegionChanged(ctx context.Context, next region.RecordingRegion, running bool) error {
	if next == c.current {
		return nil
	}
	c.current = next
	if !running || c.session != SessionInternal {
		return nil
	}
	if err := c.recorder.Stop(ctx); err != nil {
		logger.FromContext(ctx).Error("failed to stop internal session for region switch", "err", err)
	}
	if err := c.recorder.StartInternal(ctx, c.policy.Bucket(c.current)); err != nil {
		return fmt.Errorf("restart internal recording after region switch: %w", err)
	}
	return nil
}
