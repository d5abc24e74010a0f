package httpsrv

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medlink/notify-delivery-service/internal/handler/lp"
	"github.com/medlink/notify-delivery-service/internal/handler/ws"
)

// NewRouter mounts the client transports and the operational endpoints.
func NewRouter(wsHandler *ws.WSHandler, lpHandler *lp.LPHandler, admin *AdminHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", wsHandler)
	r.Get("/poll/{userID}", lpHandler.Poll)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", admin.Stats)
		r.Get("/presence/{userID}", admin.Presence)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
