package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/medlink/notify-delivery-service/internal/adapter/pubsub"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	"github.com/medlink/notify-delivery-service/internal/service/dto"
	"github.com/medlink/notify-delivery-service/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// SendResult reports the outcome of one logical send. Success reflects
// persistence only; push failures stay internal and the record remains
// queued for the next drain.
type SendResult struct {
	UserID         uuid.UUID `json:"user_id"`
	NotificationID uuid.UUID `json:"notification_id,omitempty"`
	Success        bool      `json:"success"`
	Delivered      bool      `json:"delivered"`
	Err            error     `json:"-"`
}

// Notifier is the programmatic API for internal callers that create
// notifications.
type Notifier interface {
	SendNotificationToUser(ctx context.Context, userID uuid.UUID, input *dto.NotificationInput) SendResult
	BroadcastNotification(ctx context.Context, userIDs []uuid.UUID, input *dto.NotificationInput) []SendResult
}

// Deliverer is the primary interface for transport handlers: connection
// lifecycle plus backlog drain.
type Deliverer interface {
	Subscribe(ctx context.Context, userID uuid.UUID, md registry.ConnectMetadata) (registry.Connector, error)
	Unsubscribe(ctx context.Context, connID uuid.UUID)
	Drain(ctx context.Context, userID uuid.UUID, conn registry.Connector) error
}

// DispatcherConfig carries the delivery tunables.
type DispatcherConfig struct {
	DrainWindow      time.Duration
	DrainLimit       int
	DrainPace        time.Duration
	SendTimeout      time.Duration
	BroadcastWorkers int
	PreferenceCache  int
}

func (c *DispatcherConfig) withDefaults() {
	if c.DrainWindow <= 0 {
		c.DrainWindow = 7 * 24 * time.Hour
	}
	if c.DrainLimit <= 0 {
		c.DrainLimit = 50
	}
	if c.DrainPace <= 0 {
		c.DrainPace = 100 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 500 * time.Millisecond
	}
	if c.BroadcastWorkers <= 0 {
		c.BroadcastWorkers = 8
	}
	if c.PreferenceCache <= 0 {
		c.PreferenceCache = 10000
	}
}

var (
	_ Notifier  = (*Dispatcher)(nil)
	_ Deliverer = (*Dispatcher)(nil)
)

// Dispatcher orchestrates the delivery decision: push now, queue, or
// skip. It owns the mutation of delivery fields; acknowledgment state
// belongs to the AckTracker.
type Dispatcher struct {
	store    store.Store
	hub      registry.Hubber
	presence *presence.Registry
	bus      pubsub.EventDispatcher
	logger   *slog.Logger
	cfg      DispatcherConfig

	// prefCache is a cache-aside layer over the preferences table; it is
	// invalidated on settings updates.
	prefCache *lru.Cache[uuid.UUID, *model.Preferences]
}

func NewDispatcher(
	st store.Store,
	hub registry.Hubber,
	pres *presence.Registry,
	bus pubsub.EventDispatcher,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	cfg.withDefaults()
	cache, _ := lru.New[uuid.UUID, *model.Preferences](cfg.PreferenceCache)

	return &Dispatcher{
		store:     st,
		hub:       hub,
		presence:  pres,
		bus:       bus,
		logger:    logger,
		cfg:       cfg,
		prefCache: cache,
	}
}

// SendNotificationToUser persists the notification, filters it against
// the user's preferences, and pushes it to live connections or leaves
// it queued. Success=false only on persistence failure.
func (d *Dispatcher) SendNotificationToUser(ctx context.Context, userID uuid.UUID, input *dto.NotificationInput) SendResult {
	n := input.ToModel(userID, time.Now())

	if err := d.store.Create(ctx, n); err != nil {
		return SendResult{UserID: userID, Success: false, Err: fmt.Errorf("persist notification: %w", err)}
	}
	res := SendResult{UserID: userID, NotificationID: n.ID, Success: true}

	if !Allow(n, d.preferences(ctx, userID)) {
		// Terminal for push; the record stays visible to history queries.
		if err := d.store.MarkPushTerminal(ctx, n.ID); err != nil {
			d.logger.Error("failed to retire filtered notification",
				slog.String("notification_id", n.ID.String()),
				slog.Any("err", err),
			)
		}
		return res
	}

	if !d.hub.HasActive(userID) {
		return res // Queued; next drain picks it up.
	}

	handed := d.hub.Fanout(userID, event.NewNotificationEvent(n))
	if handed == 0 {
		// Total fanout failure: leave queued for retry on reconnect.
		d.logger.Warn("fanout reached no sessions",
			slog.String("user_id", userID.String()),
			slog.String("notification_id", n.ID.String()),
		)
		return res
	}

	// Impressions bump exactly once per logical delivery, not per
	// connection; the store guard keeps this idempotent.
	if _, err := d.store.MarkDelivered(ctx, n.ID, time.Now()); err != nil {
		d.logger.Error("failed to record delivery",
			slog.String("notification_id", n.ID.String()),
			slog.Any("err", err),
		)
		return res
	}
	res.Delivered = true
	return res
}

// BroadcastNotification applies SendNotificationToUser to each user
// independently; one user's failure never affects the others.
func (d *Dispatcher) BroadcastNotification(ctx context.Context, userIDs []uuid.UUID, input *dto.NotificationInput) []SendResult {
	results := make([]SendResult, len(userIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.BroadcastWorkers)

	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			results[i] = d.SendNotificationToUser(gCtx, userID, input)
			return nil // Failures live in the per-user result.
		})
	}
	_ = g.Wait()
	return results
}

// Subscribe creates a connector for the user, attaches it to the hub
// and records the connection in the presence registry.
func (d *Dispatcher) Subscribe(ctx context.Context, userID uuid.UUID, md registry.ConnectMetadata) (registry.Connector, error) {
	// Buffer absorbs a full drain burst plus live traffic.
	const connBufferSize = 256

	conn := registry.NewConnector(ctx, userID, md, connBufferSize)
	d.hub.Register(conn)

	if _, err := d.presence.Connect(ctx, userID, conn.GetID()); err != nil {
		d.hub.Unregister(conn.GetID())
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}
	return conn, nil
}

// Unsubscribe detaches the connection from the hub and updates
// presence. Safe for unknown connection ids.
func (d *Dispatcher) Unsubscribe(ctx context.Context, connID uuid.UUID) {
	userID, ok := d.hub.Unregister(connID)
	if !ok {
		return
	}
	if _, err := d.presence.Disconnect(ctx, userID, connID); err != nil {
		d.logger.Error("presence disconnect failed",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
	}
}

// Drain replays the user's undelivered backlog to one specific
// connection, oldest first, paced so a reconnecting client is not
// flooded. If the connection dies mid-drain the rest is abandoned
// silently; undelivered items stay queued for the next reconnect.
func (d *Dispatcher) Drain(ctx context.Context, userID uuid.UUID, conn registry.Connector) error {
	since := time.Now().Add(-d.cfg.DrainWindow)
	pending, err := d.store.Undelivered(ctx, userID, since, d.cfg.DrainLimit)
	if err != nil {
		return fmt.Errorf("drain %s: load backlog: %w", userID, err)
	}
	if len(pending) == 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(d.cfg.DrainPace), 1)

	for _, n := range pending {
		select {
		case <-conn.Done():
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		if !conn.Send(event.NewNotificationEvent(n), d.cfg.SendTimeout) {
			// Saturated or gone; either way this item stays queued.
			continue
		}
		if _, err := d.store.MarkDelivered(ctx, n.ID, time.Now()); err != nil {
			d.logger.Error("failed to record drained delivery",
				slog.String("notification_id", n.ID.String()),
				slog.Any("err", err),
			)
		}
	}
	return nil
}

// GetUserPresence returns the user's presence record, Offline if never
// seen.
func (d *Dispatcher) GetUserPresence(ctx context.Context, userID uuid.UUID) (*model.PresenceRecord, error) {
	return d.presence.Query(ctx, userID)
}

// GetOnlineUsersCount counts users currently not offline.
func (d *Dispatcher) GetOnlineUsersCount(ctx context.Context) (int, error) {
	online, _, err := d.presence.Counts(ctx)
	return online, err
}

// GetStats aggregates the service-level counters.
func (d *Dispatcher) GetStats(ctx context.Context) (*model.ServiceStats, error) {
	queued, err := d.store.QueuedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	online, total, err := d.presence.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	hub := d.hub.Stats()

	return &model.ServiceStats{
		QueuedCount:       queued,
		OnlineUsers:       online,
		TotalTrackedUsers: total,
		TotalConnections:  hub.TotalConnections,
	}, nil
}

// InvalidatePreferences drops the cached preferences record after a
// settings update.
func (d *Dispatcher) InvalidatePreferences(userID uuid.UUID) {
	d.prefCache.Remove(userID)
}

// preferences resolves the user's preference record via the cache.
// A missing record (new user) returns nil and the filter applies its
// fail-safe defaults; lookup errors degrade the same way rather than
// blocking urgent deliveries.
func (d *Dispatcher) preferences(ctx context.Context, userID uuid.UUID) *model.Preferences {
	if cached, ok := d.prefCache.Get(userID); ok {
		return cached
	}

	prefs, err := d.store.Preferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		d.logger.Warn("preference lookup failed, applying fail-safe defaults",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil
	}

	d.prefCache.Add(userID, prefs)
	return prefs
}
