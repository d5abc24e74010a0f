package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	wsmarshaller "github.com/medlink/notify-delivery-service/internal/handler/marshaller/ws"
	"github.com/medlink/notify-delivery-service/internal/service"
	"github.com/medlink/notify-delivery-service/internal/store"
)

const (
	// identityHeader is set by the edge proxy after authentication.
	identityHeader = "X-User-ID"

	sendTimeout     = 2 * time.Second
	maxFrameSize    = 64 << 10
	serverVersion   = "1.0"
	defaultPageSize = 50
)

// settingsInvalidator evicts a user's cached preferences after a
// settings write so the filter sees fresh flags.
type settingsInvalidator interface {
	InvalidatePreferences(userID uuid.UUID)
}

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	acks      *service.AckTracker
	actions   *service.ActionRegistry
	presence  *presence.Registry
	store     store.Store
	cache     settingsInvalidator
	upgrader  websocket.Upgrader
}

func NewWSHandler(
	logger *slog.Logger,
	deliverer service.Deliverer,
	acks *service.AckTracker,
	actions *service.ActionRegistry,
	pres *presence.Registry,
	st store.Store,
	cache settingsInvalidator,
) *WSHandler {
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		acks:      acks,
		actions:   actions,
		presence:  pres,
		store:     st,
		cache:     cache,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT IDENTITY (authentication happens upstream)
	userID, err := uuid.Parse(r.Header.Get(identityHeader))
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer sock.Close()
	sock.SetReadLimit(maxFrameSize)

	// 3. SUBSCRIBE VIA THE DELIVERY SERVICE
	conn, err := h.deliverer.Subscribe(r.Context(), userID, registry.ConnectMetadata{Transport: "websocket", RemoteIP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		h.logger.Error("ws subscribe failed", "user_id", userID, "error", err)
		return
	}
	// Detach from the hub before the connector shell is recycled.
	defer conn.Close()
	defer h.deliverer.Unsubscribe(context.Background(), conn.GetID())

	h.logger.Info("ws opened", "user_id", userID, "conn_id", conn.GetID())

	conn.Send(event.NewSystemEvent(userID, event.Connected, event.PriorityHigh, &event.ConnectedPayload{
		Ok:            true,
		ConnectionID:  conn.GetID().String(),
		ServerVersion: serverVersion,
	}), sendTimeout)

	// 4. WRITE PUMP
	go h.writePump(r.Context(), sock, conn)

	// 5. READ PUMP (owns the request goroutine)
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws read failed", "user_id", userID, "error", err)
			}
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.logger.Debug("ws bad frame", "user_id", userID, "error", err)
			continue
		}

		h.handleCommand(r.Context(), userID, conn, &cmd)
	}
}

func (h *WSHandler) writePump(ctx context.Context, sock *websocket.Conn, conn registry.Connector) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			_ = sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case ev := <-conn.Recv():
			data, err := wsmarshaller.MarshallDeliveryEvent(ev)
			if err != nil {
				h.logger.Error("failed to marshal ws event", "error", err)
				continue
			}

			if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("ws send failed", "error", err)
				return
			}
		}
	}
}

func (h *WSHandler) handleCommand(ctx context.Context, userID uuid.UUID, conn registry.Connector, cmd *ClientCommand) {
	switch cmd.Action {
	case cmdSubscribe:
		// Replay the undelivered backlog onto this connection. Runs async
		// so a long drain never blocks the read pump.
		go func() {
			if err := h.deliverer.Drain(ctx, userID, conn); err != nil {
				h.logger.Error("backlog drain failed", "user_id", userID, "error", err)
			}
		}()

	case cmdHeartbeat:
		if err := h.presence.Touch(ctx, userID); err != nil {
			h.logger.Debug("heartbeat touch failed", "user_id", userID, "error", err)
		}

	case cmdAcknowledge:
		var p ackData
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			h.reply(conn, userID, cmdAcknowledge, nil, err)
			return
		}
		err := h.acks.Acknowledge(ctx, p.NotificationID, p.Event)
		h.reply(conn, userID, cmdAcknowledge, &p.NotificationID, err)

	case cmdAction:
		var p actionData
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			h.reply(conn, userID, cmdAction, nil, err)
			return
		}
		outcome, err := h.actions.Dispatch(ctx, userID, p.NotificationID, p.Action, p.Data)
		if err != nil {
			h.reply(conn, userID, cmdAction, &p.NotificationID, err)
			return
		}
		if outcome != nil && outcome.RedirectURL != "" {
			conn.Send(event.NewSystemEvent(userID, event.Redirect, event.PriorityNormal, &event.RedirectPayload{
				URL: outcome.RedirectURL,
			}), sendTimeout)
		}

	case cmdPresenceUpdate:
		var p presenceData
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return
		}
		_, err := h.presence.SetState(ctx, userID, model.PresenceState(p.State), p.StatusMessage)
		if err != nil && !errors.Is(err, presence.ErrInvalidState) && !errors.Is(err, presence.ErrNoActiveConnections) {
			h.logger.Error("presence update failed", "user_id", userID, "error", err)
		}

	case cmdHistory:
		var p historyData
		if cmd.Data != nil {
			if err := json.Unmarshal(cmd.Data, &p); err != nil {
				return
			}
		}
		if p.Limit <= 0 {
			p.Limit = defaultPageSize
		}
		items, err := h.store.History(ctx, userID, p.Page, p.Limit, store.HistoryFilter{
			Type:       p.Type,
			UnreadOnly: p.UnreadOnly,
		})
		if err != nil {
			h.logger.Error("history query failed", "user_id", userID, "error", err)
			return
		}
		conn.Send(event.NewSystemEvent(userID, event.History, event.PriorityNormal, items), sendTimeout)

	case cmdMarkAllRead:
		var p markAllReadData
		if cmd.Data != nil {
			if err := json.Unmarshal(cmd.Data, &p); err != nil {
				return
			}
		}
		count, err := h.acks.MarkAllRead(ctx, userID, p.Type)
		h.replyCount(conn, userID, cmdMarkAllRead, count, err)

	case cmdGetSettings:
		h.sendSettings(ctx, userID, conn)

	case cmdUpdateSettings:
		var p settingsData
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return
		}
		prefs := &model.Preferences{
			UserID:        userID,
			Consultations: p.Consultations,
			Payments:      p.Payments,
			Messages:      p.Messages,
			System:        p.System,
			Reminders:     p.Reminders,
			UpdatedAt:     time.Now(),
		}
		if err := h.store.SavePreferences(ctx, prefs); err != nil {
			h.logger.Error("save preferences failed", "user_id", userID, "error", err)
			return
		}
		h.cache.InvalidatePreferences(userID)
		conn.Send(event.NewSystemEvent(userID, event.Settings, event.PriorityNormal, prefs), sendTimeout)

	default:
		h.logger.Debug("ws unknown command", "user_id", userID, "action", cmd.Action)
	}
}

func (h *WSHandler) sendSettings(ctx context.Context, userID uuid.UUID, conn registry.Connector) {
	prefs, err := h.store.Preferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		prefs = model.DefaultPreferences(userID)
	} else if err != nil {
		h.logger.Error("load preferences failed", "user_id", userID, "error", err)
		return
	}
	conn.Send(event.NewSystemEvent(userID, event.Settings, event.PriorityNormal, prefs), sendTimeout)
}

func (h *WSHandler) reply(conn registry.Connector, userID uuid.UUID, command string, id *uuid.UUID, err error) {
	res := &ackResult{Command: command, Ok: err == nil, NotificationID: id}
	if err != nil {
		res.Error = err.Error()
	}
	conn.Send(event.NewSystemEvent(userID, event.Ack, event.PriorityNormal, res), sendTimeout)
}

func (h *WSHandler) replyCount(conn registry.Connector, userID uuid.UUID, command string, count int64, err error) {
	res := &ackResult{Command: command, Ok: err == nil, Updated: count}
	if err != nil {
		res.Error = err.Error()
	}
	conn.Send(event.NewSystemEvent(userID, event.Ack, event.PriorityNormal, res), sendTimeout)
}
