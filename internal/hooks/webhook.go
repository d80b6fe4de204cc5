// Package hooks implements spec.md §6's hook webhook:
// POST /api/hooks/memory-created, a fire-and-forget sink that broadcasts a
// memory:created event. Grounded on ziadkadry99-auto-doc's
// internal/notifications/routes.go for the chi route-registration and
// envelope-response shape; spec.md §7 specifies this endpoint's failure
// mode explicitly ("Hook webhook failures are logged at debug; capture
// continues") so dispatch runs in a detached goroutine with its own short
// deadline rather than blocking the HTTP response.
package hooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JoeyEamigh/ccengram/internal/broadcast"
	"github.com/JoeyEamigh/ccengram/internal/memory"
)

// dispatchTimeout bounds the detached broadcast goroutine; spec.md names
// no specific deadline for this sink, so this mirrors §5's general
// provider-unrelated HTTP-call deadline conservatively scaled down for an
// in-process fan-out rather than a network call.
const dispatchTimeout = 5 * time.Second

// envelope is the JSON response shape shared by every hook endpoint.
type envelope struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// createdRequest is the POST /api/hooks/memory-created body.
type createdRequest struct {
	MemoryID  string `json:"memoryId"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId,omitempty"`
}

// RegisterRoutes mounts the hook surface under /api/hooks on r.
func RegisterRoutes(r chi.Router, memories *memory.Store, hub *broadcast.Hub) {
	r.Post("/api/hooks/memory-created", handleMemoryCreated(memories, hub))
}

func handleMemoryCreated(memories *memory.Store, hub *broadcast.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createdRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, envelope{Error: "validation", Message: "malformed JSON body"})
			return
		}
		if req.MemoryID == "" {
			writeEnvelope(w, http.StatusBadRequest, envelope{Error: "validation", Message: "memoryId is required"})
			return
		}

		m, err := memories.Get(r.Context(), req.MemoryID)
		if err != nil || m == nil {
			writeEnvelope(w, http.StatusNotFound, envelope{Error: "not_found", Message: "memory not found"})
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			_ = ctx // hub.Broadcast is in-process and cannot block on I/O; the
			// deadline exists for symmetry with spec.md's "detached task with
			// its own timeout" wording and to bound a future durable-log sink.
			hub.Broadcast(broadcast.Event{
				Type:      "memory:created",
				Memory:    m,
				ProjectID: req.ProjectID,
				SessionID: req.SessionID,
			})
		}()

		writeEnvelope(w, http.StatusOK, envelope{OK: true})
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	if status == http.StatusOK {
		env.OK = true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Debug("hooks: encoding response failed", slog.String("error", err.Error()))
	}
}
