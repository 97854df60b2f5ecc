package notifications

import (
	"log/slog"
	"sort"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Registry holds the channel adapters registered at startup.
type Registry struct {
	adapters map[domain.ChannelKind]Adapter
}

// NewRegistry creates a registry. A later adapter of the same kind replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.ChannelKind]Adapter, len(adapters))
	for _, a := range adapters {
		if _, exists := m[a.Kind()]; exists {
			slog.Warn("replacing registered adapter", "channel", a.Kind())
		}
		m[a.Kind()] = a
	}
	return &Registry{adapters: m}
}

// Adapter returns the adapter for kind.
func (r *Registry) Adapter(kind domain.ChannelKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Enabled reports whether an adapter for kind is registered and its provider is configured.
func (r *Registry) Enabled(kind domain.ChannelKind) bool {
	a, ok := r.adapters[kind]
	return ok && a.Enabled()
}

// ProviderStatus describes one registered adapter.
type ProviderStatus struct {
	Channel domain.ChannelKind `json:"channel"`
	Enabled bool               `json:"enabled"`
}

// Providers lists registered adapters sorted by channel kind.
func (r *Registry) Providers() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.adapters))
	for kind, a := range r.adapters {
		out = append(out, ProviderStatus{Channel: kind, Enabled: a.Enabled()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
