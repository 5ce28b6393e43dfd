package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ems/internal/models"
)

var (
	_ list.Item = notificationItem{}
)

// notificationItem wraps [models.Notification] to implement [list.Item].
type notificationItem struct {
	n models.Notification
}

func (i notificationItem) FilterValue() string { return i.n.Message }
func (i notificationItem) Title() string {
	if i.n.Read {
		return "  " + i.n.Message
	}
	return styles.unread.Render("●") + " " + i.n.Message
}
func (i notificationItem) Description() string {
	desc := i.n.CreatedAt.Local().Format("Jan 2 15:04")
	if i.n.CreatedAt.IsZero() {
		desc = i.n.ID
	}
	if i.n.Link != "" {
		desc += " • " + i.n.Link
	}
	return desc
}

func toItems(items []models.Notification) []list.Item {
	out := make([]list.Item, len(items))
	for i, n := range items {
		out[i] = notificationItem{n: n}
	}
	return out
}
