package httpsrv

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/medlink/notify-delivery-service/config"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/handler/lp"
	"github.com/medlink/notify-delivery-service/internal/handler/ws"
	"github.com/medlink/notify-delivery-service/internal/service"
	"github.com/medlink/notify-delivery-service/internal/store"
)

var Module = fx.Module(
	"http",

	fx.Provide(
		func(
			logger *slog.Logger,
			deliverer service.Deliverer,
			acks *service.AckTracker,
			actions *service.ActionRegistry,
			pres *presence.Registry,
			st store.Store,
			d *service.Dispatcher,
		) *ws.WSHandler {
			return ws.NewWSHandler(logger, deliverer, acks, actions, pres, st, d)
		},
		lp.NewLPHandler,
		NewAdminHandler,
		NewRouter,
	),

	fx.Invoke(registerServer),
)

func registerServer(lc fx.Lifecycle, cfg *config.Config, router chi.Router, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", slog.Any("err", err))
				}
			}()

			logger.Info("http server listening", slog.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
