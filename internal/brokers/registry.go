// Package brokers maintains the registry of broker adapters: discovery from
// configuration, capability lookup, and lazy adapter instantiation.
package brokers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain"
)

// brokerFeatures declares the capability set of each known broker. Adapters
// declare the same set via Features(); the registry copy lets discovery stay
// metadata-only, without instantiating clients.
var brokerFeatures = map[string][]domain.Feature{
	domain.BrokerZerodha: {
		domain.FeatureQuote,
		domain.FeatureHistorical,
		domain.FeatureOrderPlacement,
		domain.FeaturePositions,
	},
	domain.BrokerAngelOne: {
		domain.FeatureQuote,
		domain.FeatureOrderPlacement,
		domain.FeaturePositions,
	},
	domain.BrokerFyers: {
		domain.FeatureQuote,
		domain.FeatureHistorical,
		domain.FeaturePositions,
	},
}

// AdapterFactory builds a broker adapter from its configuration. Factories
// run lazily on first GetBroker call so discovery has no connection side
// effects.
type AdapterFactory func(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error)

// BrokerInfo is the summary row returned by ListInfo
type BrokerInfo struct {
	BrokerID    string `json:"broker_id"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
}

// Registry indexes configured brokers by id and capability
type Registry struct {
	mu        sync.RWMutex
	configs   map[string]config.BrokerConfig
	metadata  map[string]domain.BrokerMetadata
	factories map[string]AdapterFactory
	adapters  map[string]domain.BrokerAdapter
	log       zerolog.Logger
}

// NewRegistry creates an empty broker registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		configs:   make(map[string]config.BrokerConfig),
		metadata:  make(map[string]domain.BrokerMetadata),
		factories: make(map[string]AdapterFactory),
		adapters:  make(map[string]domain.BrokerAdapter),
		log:       log.With().Str("component", "broker_registry").Logger(),
	}
}

// RegisterFactory associates a broker id with its adapter constructor
func (r *Registry) RegisterFactory(brokerID string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(brokerID)] = factory
}

// Discover populates metadata for every configured broker. It touches
// configuration only - no client is built and no connection is opened.
// Returns the set of broker ids found.
func (r *Registry) Discover(configs map[string]config.BrokerConfig) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make([]string, 0, len(configs))
	for id, cfg := range configs {
		id = strings.ToLower(id)
		r.configs[id] = cfg
		r.metadata[id] = domain.BrokerMetadata{
			BrokerID:    id,
			DisplayName: cfg.DisplayName,
			Enabled:     cfg.Enabled,
			Features:    brokerFeatures[id],
		}
		found = append(found, id)
		r.log.Info().
			Str("broker", id).
			Bool("enabled", cfg.Enabled).
			Msg("Discovered broker")
	}

	sort.Strings(found)
	return found
}

// GetMetadata returns the metadata for a broker, or nil if unknown
func (r *Registry) GetMetadata(brokerID string) *domain.BrokerMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.metadata[strings.ToLower(brokerID)]; ok {
		return &m
	}
	return nil
}

// RegisterAdapter upserts a pre-built adapter by its broker id. Idempotent:
// registering the same id replaces the previous adapter.
func (r *Registry) RegisterAdapter(adapter domain.BrokerAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strings.ToLower(adapter.ID())
	r.adapters[id] = adapter
	if _, ok := r.metadata[id]; !ok {
		r.metadata[id] = domain.BrokerMetadata{
			BrokerID:    id,
			DisplayName: id,
			Enabled:     true,
			Features:    adapter.Features(),
		}
	}
}

// GetBroker returns the adapter for a broker id, instantiating it on first
// use via the registered factory. Returns nil for unknown or unbuildable
// brokers.
func (r *Registry) GetBroker(brokerID string) domain.BrokerAdapter {
	id := strings.ToLower(brokerID)

	r.mu.RLock()
	if adapter, ok := r.adapters[id]; ok {
		r.mu.RUnlock()
		return adapter
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock
	if adapter, ok := r.adapters[id]; ok {
		return adapter
	}

	cfg, hasCfg := r.configs[id]
	factory, hasFactory := r.factories[id]
	if !hasCfg || !hasFactory {
		return nil
	}

	adapter, err := factory(cfg, r.log)
	if err != nil {
		r.log.Error().Err(err).Str("broker", id).Msg("Failed to build broker adapter")
		return nil
	}

	r.adapters[id] = adapter
	r.log.Info().Str("broker", id).Msg("Broker adapter instantiated")
	return adapter
}

// GetEnabledBrokers returns the sorted ids of all enabled brokers
func (r *Registry) GetEnabledBrokers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.metadata))
	for id, m := range r.metadata {
		if m.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SupportsFeature reports whether the broker declares the capability
func (r *Registry) SupportsFeature(brokerID string, feature domain.Feature) bool {
	m := r.GetMetadata(brokerID)
	return m != nil && m.Supports(feature)
}

// ListInfo returns a summary row per known broker, sorted by id
func (r *Registry) ListInfo() []BrokerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]BrokerInfo, 0, len(r.metadata))
	for _, m := range r.metadata {
		infos = append(infos, BrokerInfo{
			BrokerID:    m.BrokerID,
			DisplayName: m.DisplayName,
			Enabled:     m.Enabled,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].BrokerID < infos[j].BrokerID })
	return infos
}

// SetEnabled toggles a broker's enabled flag in metadata
func (r *Registry) SetEnabled(brokerID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strings.ToLower(brokerID)
	m, ok := r.metadata[id]
	if !ok {
		return fmt.Errorf("unknown broker: %s", brokerID)
	}
	m.Enabled = enabled
	r.metadata[id] = m
	return nil
}
