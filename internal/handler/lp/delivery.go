package lp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	lpmarshaller "github.com/medlink/notify-delivery-service/internal/handler/marshaller/lp"
	"github.com/medlink/notify-delivery-service/internal/service"
)

const (
	pollTimeout = 30 * time.Second
	batchLimit  = 15
)

type LPHandler struct {
	deliverer service.Deliverer
}

func NewLPHandler(deliverer service.Deliverer) *LPHandler {
	return &LPHandler{
		deliverer: deliverer,
	}
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or timeout occurs.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Extract Identity (UserID should be validated via middleware in production).
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	// 2. Temporary Subscription.
	// We create a connector that will live only for the duration of this HTTP request.
	conn, err := h.deliverer.Subscribe(r.Context(), userID, registry.ConnectMetadata{
		Transport: "long-poll",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	// Ensure cleanup: remove from registry first, then return the shell
	// to the pool when the request finishes.
	defer conn.Close()
	defer h.deliverer.Unsubscribe(context.Background(), conn.GetID())

	// Fire the backlog replay so queued notifications surface in this poll.
	go func() {
		_ = h.deliverer.Drain(r.Context(), userID, conn)
	}()

	var events []event.Eventer

	// 3. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-time.After(pollTimeout):
		// Standard Long-Polling timeout to prevent hanging connections.
		w.WriteHeader(http.StatusNoContent)
		return

	case ev := <-conn.Recv():
		events = append(events, ev)

		// Drain remaining events from buffer to provide batching.
		// This minimizes the number of subsequent HTTP requests.
	drainLoop:
		for i := 0; i < batchLimit; i++ {
			select {
			case nextEv := <-conn.Recv():
				events = append(events, nextEv)
			default:
				break drainLoop
			}
		}
	}

	// 4. Final transmission.
	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
