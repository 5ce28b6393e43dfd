package models

import (
	"encoding/json"
	"time"
)

// Notification is a server-owned message addressed to the current user.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts either "id" or "_id" for the identifier.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = aux.MongoID
	}
	return nil
}

// CountUnread returns the number of unread notifications in items.
func CountUnread(items []Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}
