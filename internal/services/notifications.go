package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/ems/internal/models"
)

const NotificationsPath = "/notifications"

// NotificationService wraps the notification endpoints.
type NotificationService struct {
	client Fetcher
}

// NewNotificationService creates a new [NotificationService] over client.
func NewNotificationService(client Fetcher) *NotificationService {
	return &NotificationService{client: client}
}

// List fetches every notification for the current user.
func (s *NotificationService) List(ctx context.Context) ([]models.Notification, error) {
	resp, err := s.client.Fetch(ctx, &Request{Method: http.MethodGet, Path: NotificationsPath})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return DecodeList[models.Notification](resp)
}

// MarkRead marks one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("%s/%s/read", NotificationsPath, url.PathEscape(id))
	if _, err := s.client.Fetch(ctx, &Request{Method: http.MethodPut, Path: path}); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification as read.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	if _, err := s.client.Fetch(ctx, &Request{Method: http.MethodPut, Path: NotificationsPath + "/read-all"}); err != nil {
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}
