// Package sqlite implements the notification store contract on an
// embedded sqlite database. Monotonic delivery transitions are enforced
// in SQL guard clauses so concurrent writers cannot regress state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/store"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *sqlx.DB
}

// Open connects to the database at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	// A single writer avoids SQLITE_BUSY churn under concurrent drains.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection, applying the schema. Used by tests.
func New(db *sqlx.DB) (*Store, error) {
	if err := initSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type notificationRow struct {
	ID          string         `db:"id"`
	RecipientID string         `db:"recipient_id"`
	SenderID    sql.NullString `db:"sender_id"`
	Type        string         `db:"type"`
	Priority    string         `db:"priority"`
	Category    string         `db:"category"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	Content     sql.NullString `db:"content"`
	RelatedKind sql.NullString `db:"related_kind"`
	RelatedID   sql.NullString `db:"related_id"`
	CreatedAt   time.Time      `db:"created_at"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
	Queued      bool           `db:"queued"`
	Delivered   bool           `db:"delivered"`
	DeliveredAt sql.NullTime   `db:"delivered_at"`
	Opened      bool           `db:"opened"`
	OpenedAt    sql.NullTime   `db:"opened_at"`
	Clicked     bool           `db:"clicked"`
	ClickedAt   sql.NullTime   `db:"clicked_at"`
	IsRead      bool           `db:"is_read"`
	ReadAt      sql.NullTime   `db:"read_at"`
	Impressions int64          `db:"impressions"`
	Clicks      int64          `db:"clicks"`
}

func (r *notificationRow) toModel() (*model.Notification, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt notification id %q: %w", r.ID, err)
	}
	recipient, err := uuid.Parse(r.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt recipient id %q: %w", r.RecipientID, err)
	}

	n := &model.Notification{
		ID:          id,
		RecipientID: recipient,
		Type:        model.NotificationType(r.Type),
		Priority:    model.Priority(r.Priority),
		Category:    r.Category,
		Title:       r.Title,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		Delivery: model.DeliveryState{
			Queued:    r.Queued,
			Delivered: r.Delivered,
			Opened:    r.Opened,
			Clicked:   r.Clicked,
		},
		IsRead:      r.IsRead,
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
	}

	if r.SenderID.Valid {
		senderID, err := uuid.Parse(r.SenderID.String)
		if err == nil {
			n.SenderID = &senderID
		}
	}
	if r.Content.Valid && r.Content.String != "" {
		if err := json.Unmarshal([]byte(r.Content.String), &n.Content); err != nil {
			return nil, fmt.Errorf("sqlite: corrupt content for %s: %w", r.ID, err)
		}
	}
	if r.RelatedKind.Valid && r.RelatedID.Valid {
		relID, err := uuid.Parse(r.RelatedID.String)
		if err == nil {
			n.Related = &model.EntityRef{Kind: r.RelatedKind.String, ID: relID}
		}
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		n.ExpiresAt = &t
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time
		n.Delivery.DeliveredAt = &t
	}
	if r.OpenedAt.Valid {
		t := r.OpenedAt.Time
		n.Delivery.OpenedAt = &t
	}
	if r.ClickedAt.Valid {
		t := r.ClickedAt.Time
		n.Delivery.ClickedAt = &t
	}
	if r.ReadAt.Valid {
		t := r.ReadAt.Time
		n.ReadAt = &t
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, n *model.Notification) error {
	var content sql.NullString
	if len(n.Content) > 0 {
		raw, err := json.Marshal(n.Content)
		if err != nil {
			return fmt.Errorf("sqlite: encode content: %w", err)
		}
		content = sql.NullString{String: string(raw), Valid: true}
	}

	var senderID, relatedKind, relatedID sql.NullString
	if n.SenderID != nil {
		senderID = sql.NullString{String: n.SenderID.String(), Valid: true}
	}
	if n.Related != nil {
		relatedKind = sql.NullString{String: n.Related.Kind, Valid: true}
		relatedID = sql.NullString{String: n.Related.ID.String(), Valid: true}
	}
	var expiresAt sql.NullTime
	if n.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *n.ExpiresAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, recipient_id, sender_id, type, priority, category,
			title, message, content, related_kind, related_id,
			created_at, expires_at, queued, delivered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0)`,
		n.ID.String(), n.RecipientID.String(), senderID,
		string(n.Type), string(n.Priority), n.Category,
		n.Title, n.Message, content, relatedKind, relatedID,
		n.CreatedAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: create notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM notifications WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get notification %s: %w", id, err)
	}
	return row.toModel()
}

func (s *Store) Undelivered(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notifications
		WHERE recipient_id = ? AND queued = 1 AND delivered = 0 AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT ?`,
		userID.String(), since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: undelivered for %s: %w", userID, err)
	}
	return toModels(rows)
}

func (s *Store) History(ctx context.Context, userID uuid.UUID, page, limit int, f store.HistoryFilter) ([]*model.Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	query := `SELECT * FROM notifications WHERE recipient_id = ?`
	args := []any{userID.String()}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.UnreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: history for %s: %w", userID, err)
	}
	return toModels(rows)
}

func (s *Store) QueuedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE queued = 1 AND delivered = 0`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: queued count: %w", err)
	}
	return count, nil
}

// MarkPushTerminal removes an undelivered notification from the
// delivery queue (preference-denied). Delivered records are untouched.
func (s *Store) MarkPushTerminal(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET queued = 0
		WHERE id = ? AND delivered = 0`,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark push terminal %s: %w", id, err)
	}
	return nil
}

// MarkDelivered flips delivered exactly once; the guard keeps the
// transition and its impression bump idempotent.
func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET delivered = 1, queued = 0, delivered_at = ?, impressions = impressions + 1
		WHERE id = ? AND delivered = 0`,
		at, id.String(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark delivered %s: %w", id, err)
	}
	return changed(res), nil
}

// MarkOpened backfills delivered if the client replayed out of order.
func (s *Store) MarkOpened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if _, err := s.MarkDelivered(ctx, id, at); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET opened = 1, opened_at = ?
		WHERE id = ? AND opened = 0`,
		at, id.String(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark opened %s: %w", id, err)
	}
	return changed(res), nil
}

// MarkClicked implies opened (and transitively delivered).
func (s *Store) MarkClicked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if _, err := s.MarkOpened(ctx, id, at); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET clicked = 1, clicked_at = ?, clicks = clicks + 1
		WHERE id = ? AND clicked = 0`,
		at, id.String(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark clicked %s: %w", id, err)
	}
	return changed(res), nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = 1, read_at = ?
		WHERE id = ? AND recipient_id = ? AND is_read = 0`,
		at, id.String(), userID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark read %s: %w", id, err)
	}
	return changed(res), nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID uuid.UUID, typeFilter model.NotificationType, at time.Time) (int64, error) {
	query := `UPDATE notifications SET is_read = 1, read_at = ? WHERE recipient_id = ? AND is_read = 0`
	args := []any{at, userID.String()}
	if typeFilter != "" {
		query += ` AND type = ?`
		args = append(args, string(typeFilter))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: mark all read for %s: %w", userID, err)
	}
	count, _ := res.RowsAffected()
	return count, nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time, exemptCategories []string) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE expires_at IS NOT NULL AND expires_at < ? AND is_read = 1`
	args := []any{now}

	query, args, err := appendExemptions(query, args, exemptCategories)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired: %w", err)
	}
	count, _ := res.RowsAffected()
	return count, nil
}

func (s *Store) PurgeUndeliveredBefore(ctx context.Context, cutoff time.Time, exemptCategories []string) (int64, error) {
	query := `DELETE FROM notifications WHERE delivered = 0 AND created_at < ?`
	args := []any{cutoff}

	query, args, err := appendExemptions(query, args, exemptCategories)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge undelivered backlog: %w", err)
	}
	count, _ := res.RowsAffected()
	return count, nil
}

type preferencesRow struct {
	UserID        string    `db:"user_id"`
	Consultations bool      `db:"consultations"`
	Payments      bool      `db:"payments"`
	Messages      bool      `db:"messages"`
	System        bool      `db:"system"`
	Reminders     bool      `db:"reminders"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (s *Store) Preferences(ctx context.Context, userID uuid.UUID) (*model.Preferences, error) {
	var row preferencesRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM notification_preferences WHERE user_id = ?`, userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: preferences for %s: %w", userID, err)
	}

	id, err := uuid.Parse(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt preferences user id %q: %w", row.UserID, err)
	}
	return &model.Preferences{
		UserID:        id,
		Consultations: row.Consultations,
		Payments:      row.Payments,
		Messages:      row.Messages,
		System:        row.System,
		Reminders:     row.Reminders,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

func (s *Store) SavePreferences(ctx context.Context, p *model.Preferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(user_id, consultations, payments, messages, system, reminders, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			consultations = excluded.consultations,
			payments      = excluded.payments,
			messages      = excluded.messages,
			system        = excluded.system,
			reminders     = excluded.reminders,
			updated_at    = excluded.updated_at`,
		p.UserID.String(), p.Consultations, p.Payments, p.Messages,
		p.System, p.Reminders, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save preferences for %s: %w", p.UserID, err)
	}
	return nil
}

func toModels(rows []notificationRow) ([]*model.Notification, error) {
	out := make([]*model.Notification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func appendExemptions(query string, args []any, exempt []string) (string, []any, error) {
	if len(exempt) == 0 {
		return query, args, nil
	}
	query += ` AND category NOT IN (?)`
	expanded, expandedArgs, err := sqlx.In(query, append(args, exempt)...)
	if err != nil {
		return "", nil, fmt.Errorf("sqlite: expand category exemptions: %w", err)
	}
	return expanded, expandedArgs, nil
}

func changed(res sql.Result) bool {
	count, err := res.RowsAffected()
	return err == nil && count > 0
}
