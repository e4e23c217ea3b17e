// Package syncer uploads finished recordings to the active region backend.
// It implements the vision.Synchronizer capability: Configure points it at a
// destination, Sync kicks off an asynchronous upload cycle, StopSync cancels
// any in-flight cycle and waits for it to unwind so a reconfigure never
// races a stale upload.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"github.com/visiondrive/agent/lib/archive"
	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/store"
)

// Catalog is the slice of the recording store the syncer needs.
// Satisfied by *store.Store.
type Catalog interface {
	Pending(ctx context.Context, dataSource string) ([]store.Recording, error)
	MarkUploaded(ctx context.Context, id string) error
}

// Options tunes the upload behavior.
type Options struct {
	Client           *http.Client
	Attempts         uint
	RetryDelay       time.Duration
	CompressionLevel archive.CompressionLevel
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.CompressionLevel == "" {
		o.CompressionLevel = archive.LevelDefault
	}
	return o
}

// HTTPSyncer pushes pending recordings from the catalog to the configured
// endpoint as zstd-compressed PUTs.
type HTTPSyncer struct {
	mu sync.Mutex

	catalog Catalog
	events  *Broadcaster
	opts    Options

	dataSource string
	baseURL    string

	running bool
	rerun   bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHTTPSyncer builds a syncer over the catalog. Events are published to
// the given broadcaster; pass nil to discard them.
func NewHTTPSyncer(catalog Catalog, events *Broadcaster, opts Options) *HTTPSyncer {
	if events == nil {
		events = NewBroadcaster()
	}
	return &HTTPSyncer{
		catalog: catalog,
		events:  events,
		opts:    opts.withDefaults(),
	}
}

// Configure points the syncer at a destination. The coordinator guarantees
// StopSync precedes Configure, so no cycle can be in flight here.
func (s *HTTPSyncer) Configure(ctx context.Context, dataSource, baseURL string) error {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return fmt.Errorf("invalid sync base URL %q: %w", baseURL, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataSource = dataSource
	s.baseURL = baseURL
	logger.FromContext(ctx).Info("sync configured", "data_source", dataSource, "base_url", baseURL)
	return nil
}

// Sync starts an asynchronous upload cycle and returns immediately. If a
// cycle is already in flight the request collapses into a rerun of that
// cycle once it finishes.
func (s *HTTPSyncer) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseURL == "" {
		return fmt.Errorf("sync not configured")
	}
	if s.running {
		s.rerun = true
		return nil
	}

	// The cycle outlives the caller; detach from its cancellation but keep
	// its values (logger).
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runCycle(cctx, s.dataSource, s.baseURL, s.done)
	return nil
}

// StopSync cancels any in-flight cycle and waits for it to terminate.
// With no active cycle it is a no-op.
func (s *HTTPSyncer) StopSync(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.rerun = false
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HTTPSyncer) runCycle(ctx context.Context, dataSource, baseURL string, done chan struct{}) {
	log := logger.FromContext(ctx)
	cycleID := uuid.NewString()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		close(done)
	}()

	s.events.Publish(Event{Type: EventSyncStarted, CycleID: cycleID, DataSource: dataSource, At: time.Now().UTC()})

	uploaded := 0
	var cycleErr error
	for {
		pending, err := s.catalog.Pending(ctx, dataSource)
		if err != nil {
			cycleErr = err
			break
		}

		for _, rec := range pending {
			if ctx.Err() != nil {
				cycleErr = ctx.Err()
				break
			}
			if err := s.upload(ctx, baseURL, rec); err != nil {
				log.Error("failed to upload recording", "id", rec.ID, "err", err)
				cycleErr = err
				continue
			}
			if err := s.catalog.MarkUploaded(ctx, rec.ID); err != nil {
				log.Error("failed to mark recording uploaded", "id", rec.ID, "err", err)
				cycleErr = err
				continue
			}
			uploaded++
		}

		if ctx.Err() != nil {
			break
		}

		// A Sync issued mid-cycle collapses into one more pass.
		s.mu.Lock()
		again := s.rerun
		s.rerun = false
		s.mu.Unlock()
		if !again {
			break
		}
	}

	ev := Event{Type: EventSyncStopped, CycleID: cycleID, DataSource: dataSource, Uploaded: uploaded, At: time.Now().UTC()}
	if cycleErr != nil {
		ev.Error = cycleErr.Error()
	}
	s.events.Publish(ev)
	log.Info("sync cycle finished", "cycle_id", cycleID, "uploaded", uploaded, "err", cycleErr)
}

// upload PUTs one recording, zstd-compressed, with retries.
func (s *HTTPSyncer) upload(ctx context.Context, baseURL string, rec store.Recording) error {
	payload, err := archive.CompressFile(rec.Path, s.opts.CompressionLevel)
	if err != nil {
		return err
	}

	target := fmt.Sprintf("%s/v1/recordings/%s", baseURL, rec.ID)
	return retry.New(
		retry.Attempts(s.opts.Attempts),
		retry.Delay(s.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Encoding", "zstd")
		req.Header.Set("X-Recording-Bucket", rec.Bucket)

		resp, err := s.opts.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("upload %s: unexpected status %d", rec.ID, resp.StatusCode)
		}
		return nil
	})
}
