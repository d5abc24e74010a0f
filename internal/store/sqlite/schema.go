package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id            TEXT PRIMARY KEY,
    recipient_id  TEXT NOT NULL,
    sender_id     TEXT,
    type          TEXT NOT NULL,
    priority      TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL,
    message       TEXT NOT NULL,
    content       TEXT,
    related_kind  TEXT,
    related_id    TEXT,
    created_at    TIMESTAMP NOT NULL,
    expires_at    TIMESTAMP,
    queued        INTEGER NOT NULL DEFAULT 1,
    delivered     INTEGER NOT NULL DEFAULT 0,
    delivered_at  TIMESTAMP,
    opened        INTEGER NOT NULL DEFAULT 0,
    opened_at     TIMESTAMP,
    clicked       INTEGER NOT NULL DEFAULT 0,
    clicked_at    TIMESTAMP,
    is_read       INTEGER NOT NULL DEFAULT 0,
    read_at       TIMESTAMP,
    impressions   INTEGER NOT NULL DEFAULT 0,
    clicks        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient
    ON notifications(recipient_id, created_at);

CREATE INDEX IF NOT EXISTS idx_notifications_undelivered
    ON notifications(recipient_id, created_at) WHERE delivered = 0;

CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(recipient_id, type) WHERE is_read = 0;

CREATE INDEX IF NOT EXISTS idx_notifications_expiry
    ON notifications(expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS notification_preferences (
    user_id        TEXT PRIMARY KEY,
    consultations  INTEGER NOT NULL DEFAULT 1,
    payments       INTEGER NOT NULL DEFAULT 1,
    messages       INTEGER NOT NULL DEFAULT 1,
    system         INTEGER NOT NULL DEFAULT 1,
    reminders      INTEGER NOT NULL DEFAULT 1,
    updated_at     TIMESTAMP NOT NULL
);
`

func initSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}
