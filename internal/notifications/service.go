package notifications

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-escalator/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Service exposes the audit log and service integration config.
type Service struct {
	audit    AuditRepository
	services ServiceRepository
	registry *Registry
}

// NewService creates a new notifications service.
func NewService(audit AuditRepository, services ServiceRepository, registry *Registry) *Service {
	return &Service{
		audit:    audit,
		services: services,
		registry: registry,
	}
}

// ListNotifications returns audit records matching the filter, newest first.
func (s *Service) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	if filter.Channel != "" && !filter.Channel.IsValid() {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidFilter, filter.Channel)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	records, err := s.audit.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return records, nil
}

// GetIntegrations returns the service's broadcast integrations.
func (s *Service) GetIntegrations(ctx context.Context, serviceID string) ([]domain.ServiceIntegration, error) {
	service, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if service.Integrations == nil {
		return []domain.ServiceIntegration{}, nil
	}
	return service.Integrations, nil
}

// SetIntegrations validates and replaces the service's integrations.
func (s *Service) SetIntegrations(ctx context.Context, serviceID string, integrations []domain.ServiceIntegration) error {
	for i, integration := range integrations {
		if err := integration.Validate(); err != nil {
			return fmt.Errorf("%w: item %d (%s): %v", ErrInvalidIntegration, i, integration.Kind, err)
		}
	}

	if err := s.services.SetServiceIntegrations(ctx, serviceID, integrations); err != nil {
		return fmt.Errorf("set integrations: %w", err)
	}
	return nil
}

// Providers reports the registered channel adapters.
func (s *Service) Providers() []ProviderStatus {
	return s.registry.Providers()
}
