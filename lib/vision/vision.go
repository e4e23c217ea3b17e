// Package vision contains the region-aware recording and synchronization
// coordinator at the heart of the agent. The Manager arbitrates between the
// internally-driven recording session and user-requested external sessions,
// reacts to country updates by reclassifying regions, and restarts recording
// or the sync pipeline with the required ordering.
package vision

import (
	"context"
	"errors"
	"time"
)

// SessionRecorder performs the actual start/stop of recording sessions.
// Implementations own storage I/O; the coordinator only decides when.
type SessionRecorder interface {
	// StartInternal begins an agent-driven session in the given storage bucket.
	StartInternal(ctx context.Context, bucket string) error
	// StartExternal begins a user-requested session at an explicit path.
	StartExternal(ctx context.Context, path string) error
	// Stop ends whichever session is active.
	Stop(ctx context.Context) error
}

// Synchronizer performs the actual stop/configure/start of upload sync.
// Sync kicks off an asynchronous cycle and returns immediately; StopSync must
// terminate any in-flight cycle before returning so a subsequent Configure
// never races a stale upload.
type Synchronizer interface {
	StopSync(ctx context.Context) error
	Configure(ctx context.Context, dataSource, baseURL string) error
	Sync(ctx context.Context) error
}

// Engine is the native sensor/vision processing capability. Destroy is
// idempotent per its contract, but the Manager still guards it with a
// one-shot flag so teardown is a pure state transition.
type Engine interface {
	Destroy(ctx context.Context) error
}

var (
	// ErrNotRunning is returned when an external recording is requested while
	// the lifecycle is stopped.
	ErrNotRunning = errors.New("vision: lifecycle not running")
	// ErrInvalidPath is returned when the recorder rejects the destination of
	// an external recording.
	ErrInvalidPath = errors.New("vision: invalid recording path")
	// ErrDestroyed is returned by every operation invoked after Destroy.
	ErrDestroyed = errors.New("vision: manager destroyed")
)

// SessionKind tags the single active recording session slot.
type SessionKind string

const (
	SessionNone     SessionKind = "none"
	SessionInternal SessionKind = "internal"
	SessionExternal SessionKind = "external"
)

// Status is a snapshot of the manager's observable state.
type Status struct {
	Running         bool        `json:"running"`
	Destroyed       bool        `json:"destroyed"`
	Country         string      `json:"country,omitempty"`
	RecordingRegion string      `json:"recording_region"`
	SyncRegion      string      `json:"sync_region"`
	Session         SessionKind `json:"session"`
	SessionPath     string      `json:"session_path,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
