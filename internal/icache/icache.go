// Package icache models the instruction-memory module collaborator
//: a single-level cache whose coherence and replacement
// policy are out of scope but whose can_access/access
// contract and block size the fetch stage depends on directly.
package icache

import (
	"sync/atomic"

	"github.com/kausin97/x86fetchsim/internal/core"
)

// ICache implements core.ICache. Access bookkeeping uses atomic
// counters rather than a mutex, following ehrlich-b-go-ublk's
// metrics.go choice for simple monotonic counters under a
// single-threaded caller (no contention here, but the style carries).
//
// There is deliberately no outstanding-access limit: the fetch stage
// never signals when an access completes (that belongs to a cache
// timing model this repository doesn't build), so a capacity field
// here would have nothing to decrement it and could only ever be
// dead weight or a latent always-false trap. CanAccess's own
// back-pressure is the fetch queue's byte occupancy, enforced by its
// caller.
type ICache struct {
	blockSize int

	accessCount uint64
	nextHandle  uint64
}

func New(blockSize int) *ICache {
	return &ICache{blockSize: blockSize}
}

func (m *ICache) BlockSize() int {
	return m.blockSize
}

// CanAccess always admits a new access in this model: the fetch
// stage's own back-pressure (fetchq_occ) is the real bottleneck, and a
// richer miss/port-contention model is out of scope here (uop cache,
// loop-stream detector, and by the same reasoning, cache timing
// detail are not modeled).
func (m *ICache) CanAccess(paddr uint64) bool {
	return true
}

// Access opens a new instruction-cache access and returns a
// correlation handle.
func (m *ICache) Access(paddr uint64) core.AccessHandle {
	atomic.AddUint64(&m.accessCount, 1)
	h := atomic.AddUint64(&m.nextHandle, 1)
	return core.AccessHandle(h)
}

// AccessCount returns the total number of Access calls, for stats.
func (m *ICache) AccessCount() uint64 {
	return atomic.LoadUint64(&m.accessCount)
}
