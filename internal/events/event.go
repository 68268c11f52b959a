// Package events carries forum domain events over RabbitMQ: the publisher used
// by the HTTP handlers and the consumer that keeps an audit log of them.
package events

import "time"

// Queue names.  Each event type has its own durable queue on the default
// exchange.
const (
	QueuePostCreated    = "forum.post.created"
	QueueProfileUpdated = "forum.profile.updated"
)

// Queues lists every queue the audit consumer drains.
var Queues = []string{QueuePostCreated, QueueProfileUpdated}

// PostCreatedEvent is published after a post has been stored.
type PostCreatedEvent struct {
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdatedEvent is published after a user changed their own profile.
// It never carries the email or password values.
type ProfileUpdatedEvent struct {
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username"`
	PasswordChanged bool      `json:"password_changed"`
	UpdatedAt       time.Time `json:"updated_at"`
}
