package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiondrive/agent/lib/region"
	"github.com/visiondrive/agent/lib/store"
	"github.com/visiondrive/agent/lib/syncer"
	"github.com/visiondrive/agent/lib/vision"
)

type recorderStub struct{}

func (recorderStub) StartInternal(context.Context, string) error { return nil }
func (recorderStub) StartExternal(_ context.Context, path string) error {
	if !strings.HasPrefix(path, "/") {
		return vision.ErrInvalidPath
	}
	return nil
}
func (recorderStub) Stop(context.Context) error { return nil }

type syncerStub struct{}

func (syncerStub) StopSync(context.Context) error { return nil }
func (syncerStub) Configure(context.Context, string, string) error { return nil }
func (syncerStub) Sync(context.Context) error { return nil }

type engineStub struct{}

func (engineStub) Destroy(context.Context) error { return nil }

type fixture struct {
	srv     *httptest.Server
	manager *vision.Manager
	catalog *store.Store
	events  *syncer.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	events := syncer.NewBroadcaster()
	manager := vision.New(region.Default(), recorderStub{}, syncerStub{}, engineStub{})

	r := chi.NewRouter()
	New(manager, catalog, events).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, manager: manager, catalog: catalog, events: events}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) vision.Status {
	t.Helper()
	var st vision.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func TestLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/lifecycle/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeStatus(t, resp)
	assert.True(t, st.Running)
	assert.Equal(t, vision.SessionInternal, st.Session)

	resp = f.do(t, http.MethodPost, "/lifecycle/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeStatus(t, resp)
	assert.False(t, st.Running)
	assert.Equal(t, vision.SessionNone, st.Session)
}

func TestUpdateCountry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/country", updateCountryRequest{Country: "CN"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeStatus(t, resp)
	assert.Equal(t, "CN", st.Country)
	assert.Equal(t, "mainland", st.SyncRegion)
}

func TestUpdateCountryRejectsBadBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut, f.srv.URL+"/country", strings.NewReader("{broken"))
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRecordingWhileStoppedConflicts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/recording/start", startRecordingRequest{Path: "/tmp/out.vdr"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartRecordingInvalidPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/lifecycle/start", nil).StatusCode)
	resp := f.do(t, http.MethodPost, "/recording/start", startRecordingRequest{Path: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExternalRecordingRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/lifecycle/start", nil).StatusCode)

	resp := f.do(t, http.MethodPost, "/recording/start", startRecordingRequest{Path: "/tmp/session.vdr"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decodeStatus(t, resp)
	assert.Equal(t, vision.SessionExternal, st.Session)
	assert.Equal(t, "/tmp/session.vdr", st.SessionPath)

	resp = f.do(t, http.MethodPost, "/recording/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeStatus(t, resp)
	assert.Equal(t, vision.SessionInternal, st.Session)
}

func TestEndpointsAfterDestroyReturnGone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.manager.Destroy(context.Background()))

	for _, ep := range []struct{ method, path string }{
		{http.MethodPost, "/lifecycle/start"},
		{http.MethodPost, "/lifecycle/stop"},
		{http.MethodPost, "/recording/stop"},
	} {
		resp := f.do(t, ep.method, ep.path, nil)
		assert.Equal(t, http.StatusGone, resp.StatusCode, ep.path)
	}
	resp := f.do(t, http.MethodPut, "/country", updateCountryRequest{Country: "USA"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestListRecordings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := store.Recording{
		ID:        "r1",
		Path:      "/data/r1.vdr",
		Bucket:    "row/default",
		SizeBytes: 42,
		StartedAt: time.Now().Add(-time.Minute).UTC(),
		EndedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.catalog.Put(context.Background(), rec))

	resp := f.do(t, http.MethodGet, "/recordings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []recordingDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "row/default", got[0].Bucket)
	assert.False(t, got[0].Uploaded)
}

func TestEventsSocketDeliversSyncEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Let the server-side subscription register before publishing.
	time.Sleep(100 * time.Millisecond)
	f.events.Publish(syncer.Event{Type: syncer.EventSyncStarted, CycleID: "c1", DataSource: "mainland", At: time.Now().UTC()})

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev syncer.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, syncer.EventSyncStarted, ev.Type)
	assert.Equal(t, "c1", ev.CycleID)
}
