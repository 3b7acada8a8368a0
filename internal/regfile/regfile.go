// Package regfile implements the register-file helper collaborator
//: a scoreboard of the most recent uop to write each
// architectural register, so a dependency-aware downstream consumer
// (internal/ooo, out of the fetch stage's own scope) can classify a
// uop's RAW dependencies without rescanning the fetch queue. Grounded
// on proto/ooo/ooo.go's scoreboard-plus-dependency-matrix design,
// narrowed from its 32-bit readiness bitmap down to a plain
// last-writer table — the fetch stage only needs to record producers,
// not decide readiness.
package regfile

import "github.com/kausin97/x86fetchsim/internal/core"

const numRegs = 16

// RegFile implements core.RegFile.
type RegFile struct {
	lastWriter [numRegs]uint64 // uop ID of the last writer; meaningful only where written is set
	written    [numRegs]bool
}

func New() *RegFile {
	return &RegFile{}
}

// CountDeps records u as the new last writer of its destination
// register, if the underlying uinst writes one (CMP, branches and
// stores do not). It leaves u unchanged — the uop shape the fetch stage
// produces carries no dependency field — so CountDeps only keeps the
// scoreboard current for whichever downstream stage reads it next via
// Deps.
func (r *RegFile) CountDeps(u *core.Uop) {
	switch u.Uinst.Opcode {
	case 0x3, 0x8, 0x9, 0xD: // CMP, BRA, BT, MOV.L store: no register written
		return
	}
	if int(u.Uinst.Dest) < numRegs {
		r.lastWriter[u.Uinst.Dest] = u.ID
		r.written[u.Uinst.Dest] = true
	}
}

// Deps reports the producer uop ID for each of a uop's source
// registers, 0 if the register has never been written in this
// scoreboard's lifetime (i.e. it's a live-in, not a local RAW hazard).
func (r *RegFile) Deps(u *core.Uop) (src1Producer, src2Producer uint64) {
	if int(u.Uinst.Src1) < numRegs && r.written[u.Uinst.Src1] {
		src1Producer = r.lastWriter[u.Uinst.Src1]
	}
	if int(u.Uinst.Src2) < numRegs && r.written[u.Uinst.Src2] {
		src2Producer = r.lastWriter[u.Uinst.Src2]
	}
	return
}

// Reset clears the scoreboard, e.g. on a pipeline flush.
func (r *RegFile) Reset() {
	*r = RegFile{}
}
