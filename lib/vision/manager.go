package vision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/region"
)

// Manager composes the recording and sync coordinators behind the agent's
// single public control surface. It exclusively owns the lifecycle state and
// the last-known country; the coordinators own their regions and the session
// slot. Public operations are serialized by an internal mutex, matching the
// single-writer design: the only true concurrency in the subsystem is the
// synchronizer's background upload cycle.
type Manager struct {
	mu sync.Mutex

	policy region.Policy
	engine Engine
	rec    *recordingCoordinator
	sync   *syncCoordinator

	running   bool
	destroyed bool
	country   region.CountryCode
}

// New builds a Manager around the given capabilities.
func New(policy region.Policy, recorder SessionRecorder, syncer Synchronizer, engine Engine) *Manager {
	return &Manager{
		policy: policy,
		engine: engine,
		rec:    newRecordingCoordinator(recorder, policy),
		sync:   newSyncCoordinator(syncer, policy),
	}
}

// Start transitions to running and opens the internal recording session.
// Starting while already running is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	if m.running {
		return nil
	}
	m.running = true
	if err := m.rec.onLifecycleStart(ctx); err != nil {
		logger.FromContext(ctx).Error("recording did not start with lifecycle", "err", err)
		return err
	}
	logger.FromContext(ctx).Info("lifecycle started", "recording_region", m.rec.current)
	return nil
}

// Stop closes the recording session, flushes the just-finished recording
// through the sync pipeline, and transitions to stopped. Stopping while
// already stopped is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	if !m.running {
		return nil
	}

	errStop := m.rec.onLifecycleStop(ctx)
	errFlush := m.sync.onRecordingFinalized(ctx)
	m.running = false
	logger.FromContext(ctx).Info("lifecycle stopped")
	return errors.Join(errStop, errFlush)
}

// OnCountryUpdated reclassifies the country signal and forwards the resolved
// regions. The sync coordinator reacts regardless of lifecycle state; the
// recording coordinator gates on running internally.
func (m *Manager) OnCountryUpdated(ctx context.Context, country region.CountryCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	m.country = country
	rr, sr := m.policy.Resolve(country)
	logger.FromContext(ctx).Info("country updated", "country", country, "recording_region", rr, "sync_region", sr)

	errSync := m.sync.onRegionChanged(ctx, sr)
	errRec := m.rec.onRegionChanged(ctx, rr, m.running)
	return errors.Join(errSync, errRec)
}

// StartRecording requests an external recording session at path. It fails
// with ErrNotRunning while stopped and ErrInvalidPath when the destination
// is rejected; errors are returned to the caller, never fatal.
func (m *Manager) StartRecording(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	if strings.TrimSpace(path) == "" {
		return ErrInvalidPath
	}
	return m.rec.onExternalRequested(ctx, path, m.running)
}

// StopRecording ends an external recording session, resuming internal
// recording while the lifecycle runs. Without an external session it is a
// no-op.
func (m *Manager) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	return m.rec.onExternalStopped(ctx, m.running)
}

// Destroy releases the recorder, synchronizer, and native engine exactly
// once. Further Destroy calls are no-ops; every other operation afterwards
// returns ErrDestroyed.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return nil
	}
	m.destroyed = true

	var errs []error
	if m.running {
		if err := m.rec.onLifecycleStop(ctx); err != nil {
			errs = append(errs, err)
		}
		m.running = false
	}
	if err := m.sync.syncer.StopSync(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.engine.Destroy(ctx); err != nil {
		errs = append(errs, err)
	}
	logger.FromContext(ctx).Info("vision manager destroyed")
	return errors.Join(errs...)
}

// Status returns a snapshot of the observable state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Running:         m.running,
		Destroyed:       m.destroyed,
		Country:         string(m.country),
		RecordingRegion: m.rec.current.String(),
		SyncRegion:      m.sync.current.String(),
		Session:         m.rec.session,
		SessionPath:     m.rec.externalPath,
		UpdatedAt:       time.Now().UTC(),
	}
}
