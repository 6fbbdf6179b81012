package filtering

import (
	"slices"
	"sync/atomic"
)

// Store holds the current FilterConfig. Readers always see a complete
// snapshot.
type Store struct {
	current atomic.Pointer[FilterConfig]
}

// NewStore returns a Store initialised with cfg.
func NewStore(cfg FilterConfig) *Store {
	s := &Store{}
	s.Swap(cfg)
	return s
}

// Load returns the current snapshot. The result must not be modified.
func (s *Store) Load() *FilterConfig {
	if cfg := s.current.Load(); cfg != nil {
		return cfg
	}
	def := DefaultFilterConfig()
	return &def
}

// Swap installs cfg and returns the previous snapshot, which is nil on the
// first call.
func (s *Store) Swap(cfg FilterConfig) *FilterConfig {
	cfg.RestrictedAddress = slices.Clone(cfg.RestrictedAddress)
	return s.current.Swap(&cfg)
}
