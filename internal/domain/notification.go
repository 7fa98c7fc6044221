package domain

import "time"

type NotificationID string

// Notification is created server-side and pushed to the client. The only
// client-side mutation is the Read flag.
type Notification struct {
	ID        NotificationID `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"createdAt"`
	Read      bool           `json:"read"`
}
