package model

import "time"

// HubStats is a point-in-time snapshot of the local connection registry.
type HubStats struct {
	TotalUsers       int           `json:"total_users"`
	TotalConnections int           `json:"total_connections"`
	Uptime           time.Duration `json:"uptime"`
}

// ServiceStats is the programmatic stats surface exposed to internal
// callers and the admin endpoint.
type ServiceStats struct {
	QueuedCount       int64 `json:"queued_count"`
	OnlineUsers       int   `json:"online_users"`
	TotalTrackedUsers int   `json:"total_tracked_users"`
	TotalConnections  int   `json:"total_connections"`
}
