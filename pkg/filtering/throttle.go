package filtering

import "time"

// DefaultWindow is the minimum event time between two evaluations of the same
// (app, url) pair.
const DefaultWindow = time.Second

// Gate throttles evaluations per (app, url) pair.
type Gate struct {
	memory *Memory
	window int64
}

// NewGate returns a Gate backed by memory. Event times are in milliseconds,
// so window is rounded up to a whole millisecond.
func NewGate(memory *Memory, window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	ms := window.Milliseconds()
	if window%time.Millisecond != 0 {
		ms++
	}
	return &Gate{memory: memory, window: ms}
}

// Qualifies reports whether changes carry both subtree and text changes.
func Qualifies(changes ChangeType) bool {
	return changes&checkChanges == checkChanges
}

// Allow reports whether an event may be evaluated. The event must carry both
// subtree and text changes and be at least one window past the last
// evaluation of key. An allowed event is recorded whatever the evaluation
// later decides.
func (g *Gate) Allow(changes ChangeType, eventTime int64, key string) bool {
	if !Qualifies(changes) {
		return false
	}
	if eventTime-g.memory.Last(key) < g.window {
		return false
	}
	g.memory.Record(key, eventTime)
	return true
}
