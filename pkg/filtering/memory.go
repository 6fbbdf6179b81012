package filtering

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryCapacity bounds the number of (app, url) pairs remembered.
const DefaultMemoryCapacity = 4096

// Memory remembers when each (app, url) pair was last evaluated. The least
// recently seen pair is forgotten once capacity is reached.
type Memory struct {
	seen *lru.Cache[string, int64]
}

// NewMemory creates a Memory holding up to capacity pairs.
func NewMemory(capacity int) (*Memory, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New[string, int64](capacity)
	if err != nil {
		return nil, fmt.Errorf("create detection memory: %w", err)
	}
	return &Memory{seen: cache}, nil
}

// DetectionKey builds the memory key for an app and captured url.
func DetectionKey(appID, url string) string {
	return appID + ", and url " + url
}

// Last returns the event time recorded for key, or 0 when none is.
func (m *Memory) Last(key string) int64 {
	last, _ := m.seen.Get(key)
	return last
}

// Record stores eventTime for key.
func (m *Memory) Record(key string, eventTime int64) {
	m.seen.Add(key, eventTime)
}

// Len returns the number of remembered pairs.
func (m *Memory) Len() int {
	return m.seen.Len()
}
