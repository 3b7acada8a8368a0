// Package longlat tracks long-latency events (cache misses, divides,
// anything the out-of-scope execute stage would flag) per core/thread,
// which the switch-on-event arbiter consults as an independent switch
// trigger. The execute stage
// that would normally raise these events is out of scope, so
// this is a settable reference implementation: a harness (test or CLI
// demo) calls Set/Clear to simulate the condition.
package longlat

// Tracker implements core.LongLatQueue as a map of pending flags keyed
// by (core, thread) pair.
type Tracker struct {
	pending map[[2]int]bool
}

func New() *Tracker {
	return &Tracker{pending: make(map[[2]int]bool)}
}

// HasLongLatency implements core.LongLatQueue.
func (t *Tracker) HasLongLatency(core, thread int) bool {
	return t.pending[[2]int{core, thread}]
}

// Set marks a long-latency event pending for (core, thread).
func (t *Tracker) Set(core, thread int) {
	t.pending[[2]int{core, thread}] = true
}

// Clear resolves a pending long-latency event, e.g. once the
// out-of-scope execute stage would have drained it.
func (t *Tracker) Clear(core, thread int) {
	delete(t.pending, [2]int{core, thread})
}
