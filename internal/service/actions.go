package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/store"
)

// ActionOutcome is what a handled notification action reports back to
// the client. An empty RedirectURL means no navigation.
type ActionOutcome struct {
	RedirectURL string
}

// ActionRequest bundles everything an action handler may consult.
type ActionRequest struct {
	UserID       uuid.UUID
	Notification *model.Notification
	Data         map[string]any
}

// ActionHandler implements one named notification action.
type ActionHandler func(ctx context.Context, req *ActionRequest) (*ActionOutcome, error)

// ActionRegistry maps action names to handlers. New actions register
// here without touching the dispatch logic.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler

	store  store.Store
	acks   *AckTracker
	logger *slog.Logger
}

func NewActionRegistry(st store.Store, acks *AckTracker, logger *slog.Logger) *ActionRegistry {
	r := &ActionRegistry{
		handlers: make(map[string]ActionHandler),
		store:    st,
		acks:     acks,
		logger:   logger,
	}

	r.Register("view", r.handleView)
	r.Register("dismiss", r.handleDismiss)
	r.Register("acknowledge", r.handleAcknowledge)
	return r
}

// Register binds a handler to an action name, replacing any previous
// binding.
func (r *ActionRegistry) Register(name string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch resolves the notification, verifies ownership and runs the
// named handler. Unknown ids, foreign notifications and unknown actions
// are silent no-ops per the client-drift policy.
func (r *ActionRegistry) Dispatch(ctx context.Context, userID, notificationID uuid.UUID, action string, data map[string]any) (*ActionOutcome, error) {
	n, err := r.store.Get(ctx, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Debug("action for unknown notification ignored",
			slog.String("notification_id", notificationID.String()),
			slog.String("action", action),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("action %s on %s: %w", action, notificationID, err)
	}
	if n.RecipientID != userID {
		r.logger.Warn("action on foreign notification rejected",
			slog.String("user_id", userID.String()),
			slog.String("notification_id", notificationID.String()),
		)
		return nil, nil
	}

	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("unknown notification action ignored", slog.String("action", action))
		return nil, nil
	}

	return h(ctx, &ActionRequest{UserID: userID, Notification: n, Data: data})
}

// handleView records the click and navigates the client to the related
// entity, or to an explicit url carried in the rich content.
func (r *ActionRegistry) handleView(ctx context.Context, req *ActionRequest) (*ActionOutcome, error) {
	if err := r.acks.MarkClicked(ctx, req.Notification.ID); err != nil {
		return nil, err
	}

	if url, ok := req.Notification.Content["url"].(string); ok && url != "" {
		return &ActionOutcome{RedirectURL: url}, nil
	}
	if rel := req.Notification.Related; rel != nil {
		return &ActionOutcome{RedirectURL: fmt.Sprintf("/app/%s/%s", rel.Kind, rel.ID)}, nil
	}
	return &ActionOutcome{}, nil
}

// handleDismiss marks the notification read without click analytics.
func (r *ActionRegistry) handleDismiss(ctx context.Context, req *ActionRequest) (*ActionOutcome, error) {
	if err := r.acks.MarkRead(ctx, req.UserID, req.Notification.ID); err != nil {
		return nil, err
	}
	return &ActionOutcome{}, nil
}

// handleAcknowledge is the terse "seen it" action: click recorded, no
// navigation.
func (r *ActionRegistry) handleAcknowledge(ctx context.Context, req *ActionRequest) (*ActionOutcome, error) {
	if err := r.acks.MarkClicked(ctx, req.Notification.ID); err != nil {
		return nil, err
	}
	return &ActionOutcome{}, nil
}
