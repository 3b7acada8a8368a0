// Package ooo adapts proto/ooo/ooo.go's bitmap Tomasulo scheduler into
// an optional downstream consumer of the fetch stage's output: a
// harness can feed it the uops a thread's FetchQueue accumulates and
// watch them get classified into a dependency matrix and issued in
// priority order, the same two-cycle pipeline (ready bitmap +
// dependency matrix + priority classification, then tier selection +
// parallel issue). The fetch stage itself never calls into this
// package — decode, rename, and issue are out of scope; this exists
// to give the fetched uop stream somewhere real to go.
package ooo

import (
	"math"
	"math/bits"

	"github.com/kausin97/x86fetchsim/internal/core"
)

const (
	windowSize = 32
	issueWidth = 16
	numRegs    = 16
)

// Scoreboard tracks register readiness as a bitmap (64 bits is
// overkill for a 16-register ISA, but the bit-manipulation shape
// carries over exactly).
type Scoreboard uint64

func (s Scoreboard) IsReady(reg uint8) bool { return (s>>reg)&1 != 0 }
func (s *Scoreboard) MarkReady(reg uint8)   { *s |= 1 << reg }
func (s *Scoreboard) MarkPending(reg uint8) { *s &^= 1 << reg }

// operation is one window slot: a uop's scheduling-relevant fields
// plus the age needed for WAR/WAW-safe dependency checks. Age is a
// decreasing insertion counter (older entries get a larger value),
// rather than using slot index directly as age; a real FIFO window
// needs age decoupled from slot position.
type operation struct {
	valid  bool
	issued bool
	src1   uint8
	src2   uint8
	dest   uint8
	age    uint32
	uop    core.Uop
}

type window [windowSize]operation

// dependencyMatrix[i] bit j == 1 means slot j depends on slot i.
type dependencyMatrix [windowSize]uint32

type priorityClass struct {
	high uint32
	low  uint32
}

// issueBundle is up to issueWidth slot indices selected this cycle.
type issueBundle struct {
	indices [issueWidth]uint8
	valid   uint16
}

// Scheduler is the two-stage window scheduler: Push occupies a slot,
// ScheduleCycle0 computes readiness/priority, ScheduleCycle1 selects
// and issues, Complete retires producers so their consumers unblock.
type Scheduler struct {
	win        window
	scoreboard Scoreboard
	priority   priorityClass
	nextAge    uint32
}

func New() *Scheduler {
	return &Scheduler{nextAge: math.MaxUint32}
}

// Push occupies the first free slot with u, reporting false if the
// window is full (the caller — a drain-to-ooo harness — should stop
// feeding FetchQueue entries until a Complete frees room).
func (s *Scheduler) Push(u core.Uop) bool {
	for i := range s.win {
		if s.win[i].valid {
			continue
		}
		s.win[i] = operation{
			valid: true,
			src1:  u.Uinst.Src1,
			src2:  u.Uinst.Src2,
			dest:  u.Uinst.Dest,
			age:   s.nextAge,
			uop:   u,
		}
		s.nextAge--
		return true
	}
	return false
}

// ScheduleCycle0 computes the ready bitmap, builds the dependency
// matrix, and classifies priority — the scheduler's first of two
// cycles, before tier selection and issue.
func (s *Scheduler) ScheduleCycle0() {
	ready := s.readyBitmap()
	deps := s.dependencyMatrix()
	s.priority = classifyPriority(ready, deps)
}

func (s *Scheduler) readyBitmap() uint32 {
	var ready uint32
	for i := range s.win {
		op := &s.win[i]
		if !op.valid || op.issued {
			continue
		}
		if s.scoreboard.IsReady(op.src1) && s.scoreboard.IsReady(op.src2) {
			ready |= 1 << uint(i)
		}
	}
	return ready
}

func (s *Scheduler) dependencyMatrix() dependencyMatrix {
	var m dependencyMatrix
	for i := range s.win {
		opI := &s.win[i]
		if !opI.valid {
			continue
		}
		var row uint32
		for j := range s.win {
			if i == j {
				continue
			}
			opJ := &s.win[j]
			if !opJ.valid {
				continue
			}
			depends := opJ.src1 == opI.dest || opJ.src2 == opI.dest
			if depends && opI.age > opJ.age {
				row |= 1 << uint(j)
			}
		}
		m[i] = row
	}
	return m
}

func classifyPriority(ready uint32, deps dependencyMatrix) priorityClass {
	var p priorityClass
	for i := 0; i < windowSize; i++ {
		if (ready>>uint(i))&1 == 0 {
			continue
		}
		if deps[i] != 0 {
			p.high |= 1 << uint(i)
		} else {
			p.low |= 1 << uint(i)
		}
	}
	return p
}

// ScheduleCycle1 selects up to issueWidth ready ops — high-priority
// tier first, oldest slot within a tier first — marks them issued, and
// marks their destination registers pending.
func (s *Scheduler) ScheduleCycle1() []core.Uop {
	tier := s.priority.high
	if tier == 0 {
		tier = s.priority.low
	}

	var bundle issueBundle
	count := 0
	remaining := tier
	for count < issueWidth && remaining != 0 {
		idx := -1
		for r := remaining; r != 0; r &= r - 1 {
			i := bits.TrailingZeros32(r)
			if idx < 0 || s.win[i].age > s.win[idx].age {
				idx = i
			}
		}
		bundle.indices[count] = uint8(idx)
		bundle.valid |= 1 << uint(count)
		count++
		remaining &^= 1 << uint(idx)
	}

	issued := make([]core.Uop, 0, count)
	for i := 0; i < count; i++ {
		idx := bundle.indices[i]
		op := &s.win[idx]
		s.scoreboard.MarkPending(op.dest)
		op.issued = true
		issued = append(issued, op.uop)
	}
	return issued
}

// Complete marks destReg ready and retires the producing slot so the
// window can accept a new uop in its place. Completed ops must be
// freed from the window or it fills after 32 issues and never drains.
func (s *Scheduler) Complete(slot int, destReg uint8) {
	s.scoreboard.MarkReady(destReg)
	s.win[slot] = operation{}
}

// CompleteUop retires the slot holding u (matched by uop ID) and marks
// its destination register ready. A caller with no execution-latency
// model (e.g. the CLI demo) can call this immediately after issue to
// approximate zero-cycle execute; one with a real latency model should
// hold the uop and call this when the modeled execution finishes.
func (s *Scheduler) CompleteUop(u core.Uop) {
	for i := range s.win {
		if s.win[i].valid && s.win[i].uop.ID == u.ID {
			s.Complete(i, u.Uinst.Dest)
			return
		}
	}
}

// Occupancy reports how many window slots currently hold a uop.
func (s *Scheduler) Occupancy() int {
	n := 0
	for i := range s.win {
		if s.win[i].valid {
			n++
		}
	}
	return n
}
