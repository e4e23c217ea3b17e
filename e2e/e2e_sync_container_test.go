package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/visiondrive/agent/lib/store"
	"github.com/visiondrive/agent/lib/syncer"
)

const httpSinkImage = "mccutchen/go-httpbin:v2.15.0"

// TestSyncUploadsAgainstContainerizedBackend runs the sync pipeline against a
// real HTTP backend in a container instead of an in-process httptest server.
func TestSyncUploadsAgainstContainerizedBackend(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        httpSinkImage,
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor: wait.ForHTTP("/status/200").
				WithPort("8080/tcp").
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("failed to start sink container: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)
	// httpbin's /anything accepts any method on any subpath with a 200.
	baseURL := fmt.Sprintf("http://%s:%s/anything", host, port.Port())

	catalog, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	recPath := filepath.Join(t.TempDir(), "rec.vdr")
	require.NoError(t, os.WriteFile(recPath, []byte("sensor-frames"), 0o644))
	require.NoError(t, catalog.Put(ctx, store.Recording{
		ID:        "container-rec",
		Path:      recPath,
		Bucket:    "row/default",
		SizeBytes: int64(len("sensor-frames")),
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}))

	events := syncer.NewBroadcaster()
	ch, unsubscribe := events.Subscribe()
	t.Cleanup(unsubscribe)

	s := syncer.NewHTTPSyncer(catalog, events, syncer.Options{Attempts: 2})
	require.NoError(t, s.Configure(ctx, "row", baseURL))
	require.NoError(t, s.Sync(ctx))

	deadline := time.After(time.Minute)
	for {
		select {
		case ev := <-ch:
			if ev.Type != syncer.EventSyncStopped {
				continue
			}
			require.Empty(t, ev.Error)
			require.Equal(t, 1, ev.Uploaded)

			pending, err := catalog.Pending(ctx, "row")
			require.NoError(t, err)
			require.Empty(t, pending)
			return
		case <-deadline:
			t.Fatal("timed out waiting for sync cycle against container")
		}
	}
}
