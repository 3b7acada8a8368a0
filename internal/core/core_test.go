package core_test

import (
	"testing"

	"github.com/kausin97/x86fetchsim/internal/bpred"
	"github.com/kausin97/x86fetchsim/internal/btb"
	"github.com/kausin97/x86fetchsim/internal/core"
	"github.com/kausin97/x86fetchsim/internal/guest"
	"github.com/kausin97/x86fetchsim/internal/icache"
	"github.com/kausin97/x86fetchsim/internal/longlat"
	"github.com/kausin97/x86fetchsim/internal/mmu"
	"github.com/kausin97/x86fetchsim/internal/regfile"
	"github.com/kausin97/x86fetchsim/internal/tracecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCore builds a one-core, n-thread processor wired with every
// real collaborator package, each thread running a short straight-line
// program (no branches) unless seeded otherwise by the caller.
func newTestCore(t *testing.T, n int, blockSize int) (*core.Processor, *core.Core) {
	t.Helper()
	c := &core.Core{
		Index:         0,
		BTB:           btb.New(),
		MMU:           mmu.New(4096),
		Regs:          regfile.New(),
		InstMod:       icache.New(blockSize),
		Policy:        core.KindShared,
		Quantum:       10,
		SwitchPenalty: 2,
		BlockSize:     blockSize,
		FetchQueueCap: 16,
		TraceQueueCap: 8,
		BranchMax:     4,
		LongLat:       longlat.New(),
	}
	for i := 0; i < n; i++ {
		mem := guest.NewMemory(1 << 16)
		th := &core.Thread{
			Ctx:   guest.NewContext(mem),
			Index: i,
			BPred: bpred.New(),
			Asid:  i,
		}
		c.Threads = append(c.Threads, th)
	}
	// Start at cycle 1: FetchStallUntil defaults to 0 and CanFetch needs
	// it strictly below the current cycle, so nothing is eligible at 0.
	p := &core.Processor{Cores: []*core.Core{c}, Cycle: 1}
	return p, c
}

func TestCanFetch_UnboundThreadIneligible(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := &core.Thread{} // no Ctx
	assert.False(t, core.CanFetch(p, c, th))
}

func TestCanFetch_StoppedContextIneligible(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	th.Ctx.(*guest.Context).SetRunning(false)
	assert.False(t, core.CanFetch(p, c, th))
}

func TestCanFetch_FetchQueueFullIneligible(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	th.FetchqOcc = c.FetchQueueCap
	assert.False(t, core.CanFetch(p, c, th))
}

func TestCanFetch_StallUntilBlocksFetch(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	th.FetchStallUntil = p.Cycle + 5
	assert.False(t, core.CanFetch(p, c, th))
}

func TestFetchInst_ProducesOneUopAndAdvancesEIP(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x2101) // ADD #1, R1

	uop, idx, produced, size := core.FetchInst(p, c, th, false)
	require.NotNil(t, uop)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, produced)
	assert.Equal(t, 2, size)
	assert.Equal(t, uint64(0), uop.EIP)
	assert.Equal(t, uint64(2), th.FetchNEIP)
	assert.Equal(t, uint64(1), th.Fetched)
	assert.Equal(t, uint8(1), uop.Uinst.Dest)
}

func TestFetchInst_OutOfBoundsReadDecodesAsZeroWordADD(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	// This 4-bit-opcode ISA has no invalid encoding (every nibble 0x0-0xF
	// is a real opcode), so an out-of-range read (which Memory.ReadU16
	// reports as word 0) decodes as a valid "ADD R0, R0" rather than
	// faulting.
	th.Ctx = guest.NewContext(guest.NewMemory(0))

	_, _, _, size := core.FetchInst(p, c, th, false)
	assert.Equal(t, 2, size)
}

func TestFetchBlockPath_StopsAtBlockBoundary(t *testing.T) {
	p, c := newTestCore(t, 1, 4) // 4-byte blocks => 2 instructions per block
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x2101) // ADD #1, R1
	mem.WriteU16(2, 0x2201) // ADD #1, R2
	mem.WriteU16(4, 0x2301) // ADD #1, R3 (next block)

	core.FetchBlockPath(p, c, th)

	assert.Len(t, th.FetchQueue, 2, "fetch must stop at the 4-byte block boundary")
	assert.Equal(t, uint64(4), th.FetchNEIP)
}

func TestFetchBlockPath_PredictedTakenBranchEndsBlock(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x8002) // BRA +2 words -> target 6
	c.BTB.(*btb.BTB).Learn(0, 6)

	core.FetchBlockPath(p, c, th)

	require.Len(t, th.FetchQueue, 1)
	assert.Equal(t, uint64(6), th.FetchNEIP, "a confidently predicted taken branch redirects NEIP and ends the block")
	assert.Equal(t, uint64(6), th.FetchQueue[0].PredNEIP)
}

func TestFetchBlockPath_FetchQueueSaturationStopsMidBlock(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	c.FetchQueueCap = 1
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x2101)
	mem.WriteU16(2, 0x2201)

	core.FetchBlockPath(p, c, th)

	assert.Len(t, th.FetchQueue, 1, "fetchq_occ cap must stop the block loop after one uop")
}

func TestFetchTraceCachePath_MissWhenNoTraceCache(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	assert.False(t, core.FetchTraceCachePath(p, c, th))
}

func TestFetchTraceCachePath_HitReplaysTrailAndChargesUopQueueOnly(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x2101) // ADD #1, R1  (non-ctrl)
	mem.WriteU16(2, 0x2201) // ADD #1, R2  (non-ctrl)
	mem.WriteU16(4, 0x8000) // BRA +0      (ctrl, last step of the trail)

	tc := tracecache.New(64, 4)
	th.TraceCache = tc
	// No BTB entry is learned at fetch_neip, so NextBranch returns 0 and
	// mpred stays 0 for this lookup key, matching a trace recorded on a
	// line with no embedded conditional branch.
	require.True(t, tc.Record(0, 0, []uint64{0, 2, 4}, 100))

	hit := core.FetchTraceCachePath(p, c, th)
	require.True(t, hit)

	require.Len(t, th.FetchQueue, 3, "trace-cache hit must replay all three recorded steps")
	for _, u := range th.FetchQueue {
		assert.True(t, u.FetchTraceCache)
	}
	assert.Equal(t, 3, th.TraceCacheQOcc, "trace-cache sub-queue is uop-counted")
	assert.Equal(t, 0, th.FetchqOcc, "trace-cache uops must not charge the byte-sized fetch queue")
	assert.Equal(t, uint64(100), th.FetchNEIP, "fetch_neip lands on the trace's recorded neip")

	assert.Equal(t, uint64(2), th.FetchQueue[0].PredNEIP, "non-ctrl trail step keeps its straight-line pred_neip")
	assert.Equal(t, uint64(4), th.FetchQueue[1].PredNEIP, "non-ctrl trail step keeps its straight-line pred_neip")
	assert.Equal(t, uint64(100), th.FetchQueue[2].PredNEIP, "the trail's last ctrl uop predicts the trace's neip")
}

func TestArbiterShared_AllEligibleThreadsFetchEachCycle(t *testing.T) {
	p, c := newTestCore(t, 2, 64)
	for _, th := range c.Threads {
		th.Ctx.(*guest.Context).Mem.WriteU16(0, 0x2101)
	}

	core.ArbiterCore(p, c)

	for i, th := range c.Threads {
		// Zeroed memory past the ADD decodes as ADD R0, R0, so the block
		// loop runs until the 16-byte fetch queue holds 8 two-byte instructions.
		assert.Equal(t, uint64(8), th.Fetched, "thread %d should have fetched until its fetch queue filled under shared policy", i)
	}
}

func TestArbiterTimeslice_SkipsIneligibleThreadsInOrder(t *testing.T) {
	p, c := newTestCore(t, 3, 64)
	c.Policy = core.KindTimeslice
	c.Threads[0].Ctx.(*guest.Context).SetRunning(false)
	c.Threads[1].Ctx.(*guest.Context).SetRunning(false)
	c.Threads[2].Ctx.(*guest.Context).Mem.WriteU16(0, 0x2101)

	core.ArbiterCore(p, c)
	assert.Equal(t, 2, c.FetchCurrent, "round-robin must skip ineligible threads 0 and 1 and land on 2")
	assert.Equal(t, uint64(8), c.Threads[2].Fetched, "the block loop fills the 16-byte fetch queue with 8 two-byte instructions")
}

func TestArbiterTimeslice_FullScanWithNoEligibleThreadReturnsToStart(t *testing.T) {
	p, c := newTestCore(t, 3, 64)
	c.Policy = core.KindTimeslice
	for _, th := range c.Threads {
		th.Ctx.(*guest.Context).SetRunning(false)
	}

	before := c.FetchCurrent
	core.ArbiterCore(p, c)
	assert.Equal(t, before, c.FetchCurrent, "a bounded n-step scan with no eligible thread lands back where it started")
}

func TestArbiterSwitchOnEvent_SwitchesAfterQuantumExpiry(t *testing.T) {
	p, c := newTestCore(t, 2, 64)
	c.Policy = core.KindSwitchOnEvent
	c.Quantum = 1
	c.SwitchPenalty = 0
	for _, th := range c.Threads {
		th.Ctx.(*guest.Context).Mem.WriteU16(0, 0x2101)
	}

	p.Cycle = 10
	core.ArbiterCore(p, c)
	firstFetcher := c.FetchCurrent

	p.Cycle = 20 // well past quantum+penalty since the last switch
	core.ArbiterCore(p, c)
	assert.NotEqual(t, firstFetcher, c.FetchCurrent, "switch-on-event must rotate once the quantum expires")
}

func TestArbiterCore_UnknownPolicyPanics(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	c.Policy = core.FetchKind("bogus")
	assert.Panics(t, func() { core.ArbiterCore(p, c) })
}

func TestCycleDriver_AdvancesCycleAndTagsStage(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	_ = c
	before := p.Cycle
	core.CycleDriver(p)
	assert.Equal(t, before+1, p.Cycle)
	assert.Equal(t, "fetch", p.Stage)
}

func TestFetchInst_UopIDsAreMonotonic(t *testing.T) {
	p, c := newTestCore(t, 1, 64)
	th := c.Threads[0]
	mem := th.Ctx.(*guest.Context).Mem
	mem.WriteU16(0, 0x2101)
	mem.WriteU16(2, 0x2201)

	u1, _, _, _ := core.FetchInst(p, c, th, false)
	u2, _, _, _ := core.FetchInst(p, c, th, false)
	assert.Less(t, u1.ID, u2.ID)
	assert.Less(t, u1.IDInCore, u2.IDInCore)
}
