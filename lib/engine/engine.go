// Package engine owns the native sensor pipeline handle. The pipeline keeps
// scratch state on disk between recording sessions; Destroy releases it for
// good, after which the handle is unusable.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/visiondrive/agent/lib/logger"
)

// PipelineEngine is the process-wide sensor pipeline handle.
type PipelineEngine struct {
	scratchDir string

	mu        sync.Mutex
	destroyed bool
}

// New allocates the pipeline scratch directory.
func New(scratchDir string) (*PipelineEngine, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &PipelineEngine{scratchDir: scratchDir}, nil
}

// ScratchDir returns the directory holding pipeline scratch state.
func (e *PipelineEngine) ScratchDir() string {
	return e.scratchDir
}

// Destroy tears down the pipeline and removes its scratch state. Repeated
// calls are no-ops.
func (e *PipelineEngine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true

	if err := os.RemoveAll(e.scratchDir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	logger.FromContext(ctx).Info("pipeline engine destroyed", "scratch_dir", e.scratchDir)
	return nil
}
