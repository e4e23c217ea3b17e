package vision

import (
	"context"
	"fmt"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/region"
)

// syncCoordinator owns the sync-pipeline state. It reacts to sync region
// changes regardless of lifecycle state: a region switch restarts the whole
// pipeline (stop, configure, sync) because the destination itself changed,
// while a recording finalization with an unchanged region only needs a bare
// resync to push the newly written data.
type syncCoordinator struct {
	syncer Synchronizer
	policy region.Policy

	current region.SyncRegion
	// seeded flips on the first region update so that even an initial update
	// to the none region tears the pipeline down once.
	seeded bool
}

func newSyncCoordinator(syncer Synchronizer, policy region.Policy) *syncCoordinator {
	return &syncCoordinator{
		syncer:  syncer,
		policy:  policy,
		current: region.SyncNone,
	}
}

// onRegionChanged restarts the pipeline against the new region's endpoint.
// Unchanged regions are a no-op once the first update has been seen.
func (c *syncCoordinator) onRegionChanged(ctx context.Context, next region.SyncRegion) error {
	if c.seeded && next == c.current {
		return nil
	}
	c.seeded = true

	// Stop before reconfigure: any in-flight cycle must terminate before a
	// new destination takes effect.
	if err := c.syncer.StopSync(ctx); err != nil {
		logger.FromContext(ctx).Error("failed to stop sync pipeline", "err", err)
	}
	c.current = next

	if next == region.SyncNone {
		return nil
	}
	ep, ok := c.policy.Endpoint(next)
	if !ok {
		return fmt.Errorf("no endpoint configured for sync region %s", next)
	}
	if err := c.syncer.Configure(ctx, ep.DataSource, ep.BaseURL); err != nil {
		return fmt.Errorf("configure sync for region %s: %w", next, err)
	}
	if err := c.syncer.Sync(ctx); err != nil {
		return fmt.Errorf("start sync for region %s: %w", next, err)
	}
	return nil
}

// onRecordingFinalized flushes the just-completed recording with a one-shot
// resync. It never re-issues stop or configure, and it is a no-op while no
// upload destination is active.
func (c *syncCoordinator) onRecordingFinalized(ctx context.Context) error {
	if c.current == region.SyncNone {
		return nil
	}
	if err := c.syncer.Sync(ctx); err != nil {
		return fmt.Errorf("resync after recording finalized: %w", err)
	}
	return nil
}
