// Package notifications delivers incident notifications to users and service integrations.
package notifications

import (
	"context"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// AuditRepository stores the append-only delivery log.
type AuditRepository interface {
	RecordNotification(ctx context.Context, record *domain.NotificationRecord) error
	ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error)
}

// UserReader loads users with their notification preferences.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// ServiceRepository reads and writes service-level integration config.
type ServiceRepository interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
	SetServiceIntegrations(ctx context.Context, serviceID string, integrations []domain.ServiceIntegration) error
}
