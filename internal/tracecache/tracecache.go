// Package tracecache implements the optional trace-cache collaborator:
// a table of previously-assembled straight-line instruction traces,
// keyed by the starting fetch address and the predicted
// branch-direction bitmap for the branches inside the trace (so two
// runs through the same code that take different paths at an inner
// branch land on different trace-cache lines, same as a real trace
// cache). Trace construction/completion from retired blocks is out of
// scope here — decode/rename aren't simulated in this package to drive
// it; Record exists so tests and the CLI demo can pre-populate lines
// exactly as a completion engine would.
package tracecache

type entry struct {
	valid    bool
	eip      uint64
	mpred    uint64
	mopArray []uint64
	neip     uint64
}

// TraceCache implements core.TraceCache.
type TraceCache struct {
	entries   []entry
	branchMax int
}

func New(capacity, branchMax int) *TraceCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &TraceCache{entries: make([]entry, capacity), branchMax: branchMax}
}

func (c *TraceCache) index(eip, mpred uint64) int {
	h := eip ^ (mpred * 0x9E3779B97F4A7C15)
	return int(h % uint64(len(c.entries)))
}

// Lookup implements core.TraceCache.
func (c *TraceCache) Lookup(eip uint64, mpred uint64) (hit bool, mopCount int, mopArray []uint64, neip uint64) {
	e := &c.entries[c.index(eip, mpred)]
	if !e.valid || e.eip != eip || e.mpred != mpred {
		return false, 0, nil, 0
	}
	return true, len(e.mopArray), e.mopArray, e.neip
}

// Record installs a trace line: eip is the entry address, mpred the
// branch-direction bitmap it was built under, mopArray the sequence of
// per-instruction fetch addresses the trace replays, and neip the
// address fetching resumes at once the trace is exhausted. Lines
// with more than branchMax entries are rejected; every entry counts
// against that limit, whether or not it is a branch.
func (c *TraceCache) Record(eip, mpred uint64, mopArray []uint64, neip uint64) bool {
	if c.branchMax > 0 && len(mopArray) > c.branchMax {
		return false
	}
	e := &c.entries[c.index(eip, mpred)]
	*e = entry{valid: true, eip: eip, mpred: mpred, mopArray: append([]uint64(nil), mopArray...), neip: neip}
	return true
}

// Invalidate drops a line, e.g. when its code is overwritten.
func (c *TraceCache) Invalidate(eip, mpred uint64) {
	e := &c.entries[c.index(eip, mpred)]
	if e.valid && e.eip == eip && e.mpred == mpred {
		*e = entry{}
	}
}
