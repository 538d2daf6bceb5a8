package domain

import "time"

type Notification struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	EventType  string            `json:"event_type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
	IsRead     bool              `json:"is_read"`
	CreatedOn  time.Time         `json:"created_on"`
}
