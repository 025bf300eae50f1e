package execstate

import (
	"github.com/rs/zerolog"
)

// Status is the result of a status query
type Status struct {
	EffectiveEnabled  bool `json:"effective_enabled"`
	IsOverridden      bool `json:"is_overridden"`
	ConfiguredDefault bool `json:"configured_default"`
}

// Service resolves the effective execution state. It never caches the
// override: every Status call reads the shared store so a kill switch
// flipped by another process is visible immediately.
type Service struct {
	configuredDefault bool
	store             OverrideStore
	log               zerolog.Logger
}

// NewService creates an execution state service backed by store
func NewService(configuredDefault bool, store OverrideStore, log zerolog.Logger) *Service {
	return &Service{
		configuredDefault: configuredDefault,
		store:             store,
		log:               log.With().Str("service", "execstate").Logger(),
	}
}

// Status returns the effective execution state. A store outage degrades to
// "no override present" (configured default) with a warning - the shared
// store is optional infrastructure and must not crash the validator.
func (s *Service) Status() Status {
	value, present, err := s.store.Get()
	if err != nil {
		s.log.Warn().Err(err).Msg("Override store unavailable, falling back to configured default")
		return Status{
			EffectiveEnabled:  s.configuredDefault,
			IsOverridden:      false,
			ConfiguredDefault: s.configuredDefault,
		}
	}

	effective := s.configuredDefault
	if present {
		effective = value
	}
	return Status{
		EffectiveEnabled:  effective,
		IsOverridden:      present,
		ConfiguredDefault: s.configuredDefault,
	}
}

// Enable turns execution on by writing the override
func (s *Service) Enable() error {
	if err := s.store.Set(true); err != nil {
		return err
	}
	s.log.Info().Msg("Execution enabled")
	return nil
}

// Disable is the kill switch: it turns execution off by writing the override.
// Once written, every guardrail evaluation blocks before any other check.
func (s *Service) Disable() error {
	if err := s.store.Set(false); err != nil {
		return err
	}
	s.log.Warn().Msg("Execution disabled (kill switch engaged)")
	return nil
}
