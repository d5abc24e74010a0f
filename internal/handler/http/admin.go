package httpsrv

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	"github.com/medlink/notify-delivery-service/internal/service"
)

// AdminHandler exposes the operational read-only surface: aggregate
// counters and per-user presence lookups.
type AdminHandler struct {
	dispatcher *service.Dispatcher
	hub        registry.Hubber
}

func NewAdminHandler(dispatcher *service.Dispatcher, hub registry.Hubber) *AdminHandler {
	return &AdminHandler{
		dispatcher: dispatcher,
		hub:        hub,
	}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	svc, err := h.dispatcher.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"service": svc,
		"hub":     h.hub.Stats(),
	})
}

func (h *AdminHandler) Presence(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	rec, err := h.dispatcher.GetUserPresence(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, rec)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
