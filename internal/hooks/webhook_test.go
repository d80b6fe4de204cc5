package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/broadcast"
	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mem := memory.New(db, nil)
	hub := broadcast.NewHub(mem)

	r := chi.NewRouter()
	RegisterRoutes(r, mem, hub)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mem
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestMemoryCreatedHookRejectsMissingMemoryID(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/hooks/memory-created", createdRequest{ProjectID: "proj-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMemoryCreatedHookRejectsUnknownMemory(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/hooks/memory-created", createdRequest{MemoryID: "does-not-exist", ProjectID: "proj-1"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMemoryCreatedHookBroadcastsExistingMemory(t *testing.T) {
	srv, mem := newTestServer(t)

	m, err := mem.Create(context.Background(), memory.CreateRequest{
		ProjectID: "proj-1",
		Content:   "remember to use context deadlines on outbound calls",
	})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/hooks/memory-created", createdRequest{MemoryID: m.ID, ProjectID: "proj-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.True(t, env.OK)

	// the broadcast dispatch runs detached; give it a moment before the
	// test process tears the hub down.
	time.Sleep(20 * time.Millisecond)
}

func TestMemoryCreatedHookRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/hooks/memory-created", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
