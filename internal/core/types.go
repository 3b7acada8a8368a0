// Package core implements the front-end fetch stage: the per-cycle
// state machine that selects a thread, drives the guest functional
// executor, decomposes macro-instructions into uops, and deposits
// them in the per-thread fetch queue. Everything in this package is
// single-threaded cooperative logic — no goroutines, no channels, no
// suspension points; all "multithreading" here is simulated guest SMT
// state iterated sequentially within one cycle.
package core

// UinstFlags mirrors the bitmask copied from the opcode descriptor in
// the original source (X86_UINST_CTRL, X86_UINST_MEM, ...).
type UinstFlags uint32

const (
	FlagCtrl UinstFlags = 1 << iota
	FlagMem
)

// Uinst is one micro-instruction as produced by the guest functional
// executor. Dest/Src1/Src2 are architectural register numbers; Address
// is the virtual address for MEM-flagged uinsts.
type Uinst struct {
	Opcode  uint8
	Flags   UinstFlags
	Dest    uint8
	Src1    uint8
	Src2    uint8
	Address uint64
	Disasm  string
}

// InstResult is what one call to the functional executor reports
// about the macro-instruction it just ran.
type InstResult struct {
	Size   int // decoded byte length; 0 means invalid/undecodable
	Disasm string
}

// UinstSink is the process-wide, single-consumer uinst staging list's
// write side, as seen by the guest functional executor.
type UinstSink interface {
	Append(u Uinst)
}

// GuestContext is the external collaborator that owns architectural
// state for one hardware thread and can single-step one
// macro-instruction.
type GuestContext interface {
	Running() bool
	DeallocPending() bool
	SpecMode() bool
	EIP() uint64
	SetEIP(addr uint64)
	TargetEIP() uint64
	Execute(sink UinstSink) InstResult
	RegsEIP() uint64 // architectural post-execute EIP
}

// MMU is the virtual->physical translation collaborator.
type MMU interface {
	Translate(asid int, vaddr uint64) uint64
	AccessPage(paddr uint64, kind string)
}

// ICache is the instruction-memory module collaborator.
type ICache interface {
	CanAccess(paddr uint64) bool
	Access(paddr uint64) AccessHandle
	BlockSize() int
}

// AccessHandle is an opaque correlation token for an outstanding
// instruction-cache access.
type AccessHandle uint64

// BTB is the branch-target-buffer collaborator.
type BTB interface {
	NextBranch(eip uint64, blockSize int) uint64 // 0 if none found
	Lookup(eip uint64) uint64                    // target, 0 if unknown
}

// DirPred is the direction-predictor collaborator.
type DirPred interface {
	Lookup(eip uint64) bool
	LookupMultiple(addr uint64, count int) uint64 // packed bitmap
}

// TraceCache is the recorded-uop-trail collaborator.
type TraceCache interface {
	Lookup(eip uint64, mpred uint64) (hit bool, mopCount int, mopArray []uint64, neip uint64)
}

// LongLatQueue reports whether a (core, thread) has a pending
// long-latency event, consumed only by the switch-on-event policy.
type LongLatQueue interface {
	HasLongLatency(core, thread int) bool
}

// RegFile classifies a uop's register dependencies. The fetch stage
// does not use the result itself; it exists purely to satisfy the
// spec's "Register-file helper" collaborator contract so downstream
// stages (out of scope here) have something to consume.
type RegFile interface {
	CountDeps(u *Uop)
}

// Uop is one micro-operation deposited in a thread's fetch queue.
type Uop struct {
	ID             uint64
	IDInCore       uint64
	MopID          uint64
	MopCount       int
	MopIndex       int
	MopSize        int
	Flags          UinstFlags
	EIP            uint64
	NEIP           uint64
	PredNEIP       uint64
	TargetNEIP     uint64
	PhyAddr        uint64
	SpecMode       bool
	InFetchQueue   bool
	FetchTraceCache bool
	FetchAddress   uint64
	FetchAccess    AccessHandle
	Uinst          Uinst
}

// UinstStagingList is the process-wide, single-consumer FIFO the
// functional executor appends into; the Fetch Primitive is the only
// reader and drains it completely, in order, within one call.
// Re-entrance while draining is a programmer error.
type UinstStagingList struct {
	items    []Uinst
	draining bool
}

func (s *UinstStagingList) Append(u Uinst) {
	if s.draining {
		panic("core: uinst staging list appended to while draining (re-entrant Fetch Primitive)")
	}
	s.items = append(s.items, u)
}

func (s *UinstStagingList) Len() int {
	return len(s.items)
}

// drainAll removes and returns all staged uinsts in FIFO order,
// guarding against re-entrance for the duration of the call.
func (s *UinstStagingList) drainAll() []Uinst {
	if s.draining {
		panic("core: uinst staging list drained re-entrantly")
	}
	s.draining = true
	defer func() { s.draining = false }()

	items := s.items
	s.items = nil
	return items
}

// Thread is the per-hardware-thread fetch state.
type Thread struct {
	Ctx GuestContext

	// Index is this thread's position within its Core's Threads slice,
	// used only to label structured log fields (the Tracer callback).
	Index int

	FetchEIP        uint64
	FetchNEIP       uint64
	FetchBlock      uint64
	FetchAddress    uint64
	FetchAccess     AccessHandle
	FetchStallUntil uint64
	FetchqOcc       int
	TraceCacheQOcc  int
	FetchQueue      []Uop

	BPred      DirPred
	TraceCache TraceCache

	Fetched   uint64
	Committed uint64
	BTBReads  uint64

	Asid int // address-space id used for MMU translation
}

// Bound reports whether the thread has a context attached.
func (t *Thread) Bound() bool {
	return t.Ctx != nil
}

// Core owns num_threads Threads and the per-core arbiter state.
type Core struct {
	Index   int
	Threads []*Thread

	FetchCurrent    int
	FetchSwitchWhen uint64
	uopIDInCore     uint64

	BTB     BTB
	MMU     MMU
	Regs    RegFile
	InstMod ICache

	Policy        FetchKind
	Quantum       uint64
	SwitchPenalty uint64
	BlockSize     int
	FetchQueueCap int
	TraceQueueCap int
	BranchMax     int
	MMUReport     bool
	LongLat       LongLatQueue

	// Trace sink; nil means tracing is disabled. threadIdx is the
	// fetching thread's Thread.Index, so callers can attach it as a
	// structured log field alongside the core index.
	Tracer func(threadIdx int, line string)
}

// FetchKind is the closed sum of SMT fetch policies.
type FetchKind string

const (
	KindShared        FetchKind = "shared"
	KindTimeslice     FetchKind = "timeslice"
	KindSwitchOnEvent FetchKind = "switchonevent"
)

// Processor owns num_cores Cores plus the process-wide monotonic
// state: the uop id counter and the uinst staging
// list are process-scoped, not per-core.
type Processor struct {
	Cores   []*Core
	Cycle   uint64
	uopID   uint64
	Staging UinstStagingList
	Stage   string
}

func (p *Processor) nextUopID() uint64 {
	id := p.uopID
	p.uopID++
	return id
}

func nextUopIDInCore(c *Core) uint64 {
	id := c.uopIDInCore
	c.uopIDInCore++
	return id
}
