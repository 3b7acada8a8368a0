// Package guest implements the functional executor the fetch stage
// treats as an external collaborator: a minimal SuperH-style
// 16-bit ISA, adapted from SupraX.go's DecodeInstruction/ExecuteALU/
// BarrelShift/Divide. The original opcode table sketched a "Format 3
// (Branch)" encoding in its comments but never implemented it; this
// package fills that gap — the fetch stage needs control-flow uinsts
// (CTRL flag) to exercise the BTB and direction predictor, so the
// 16-bit-instruction / 12-bit-offset branch format is completed here.
package guest

import (
	"fmt"
	"math/bits"

	"github.com/kausin97/x86fetchsim/internal/core"
)

// Opcode values. The top nibble of a 16-bit instruction word.
const (
	OpADD  = 0x0 // ADD Rm, Rn      -> Rn = Rn + Rm
	OpSUB  = 0x1 // SUB Rm, Rn      -> Rn = Rn - Rm
	OpADDI = 0x2 // ADD #imm, Rn    -> Rn = Rn + imm
	OpCMP  = 0x3 // CMP Rm, Rn      -> sets CompareResult
	OpAND  = 0x4 // AND Rm, Rn
	OpOR   = 0x5 // OR Rm, Rn
	OpXOR  = 0x6 // XOR Rm, Rn
	OpNOT  = 0x7 // NOT Rm, Rn
	OpBRA  = 0x8 // BRA offset      -> unconditional branch (CTRL)
	OpBT   = 0x9 // BT offset       -> branch if CompareResult==equal (CTRL)
	OpSHL  = 0xA // SHL Rm, Rn
	OpSHR  = 0xB // SHR Rm, Rn
	OpMOVL = 0xC // MOV.L @Rm, Rn   -> load (MEM)
	OpMOVS = 0xD // MOV.L Rm, @Rn   -> store (MEM)
	OpMOV  = 0xE // MOV Rm, Rn
	OpMOVI = 0xF // MOV #imm, Rn
)

// CompareResult values set by OpCMP.
const (
	CmpEqual   = 0
	CmpLess    = 1
	CmpGreater = 2
)

// Instruction is a decoded 16-bit instruction.
type Instruction struct {
	Opcode uint8
	Dst    uint8
	Src1   uint8
	Src2   uint8
	Imm    int16 // sign-extended 8-bit immediate (Format 2)
	Offset int16 // sign-extended 12-bit offset (Format 3, BRA/BT)
}

// Decode decodes a 16-bit instruction word, adapted directly from
// SupraX.go's DecodeInstruction.
func Decode(instr uint16) Instruction {
	opcode := uint8((instr >> 12) & 0xF)
	d := Instruction{
		Opcode: opcode,
		Dst:    uint8((instr >> 8) & 0xF),
		Src1:   uint8((instr >> 4) & 0xF),
		Src2:   uint8(instr & 0xF),
		Imm:    int16(int8(instr & 0xFF)),
	}
	if opcode == OpBRA || opcode == OpBT {
		raw := instr & 0x0FFF
		// sign-extend a 12-bit field
		if raw&0x0800 != 0 {
			d.Offset = int16(raw) - 0x1000
		} else {
			d.Offset = int16(raw)
		}
	}
	return d
}

// BarrelShift performs a variable shift, carried over from SupraX.go
// unchanged (a 6-stage sequential barrel shifter).
func BarrelShift(data uint64, shiftAmount uint8, shiftLeft bool) uint64 {
	amount := shiftAmount & 0x3F
	stages := []uint8{1, 2, 4, 8, 16, 32}
	for _, s := range stages {
		if amount&s == 0 {
			continue
		}
		if shiftLeft {
			data <<= s
		} else {
			data >>= s
		}
	}
	return data
}

// Divide performs the CLZ-based magnitude-approximation division from
// SupraX.go, unchanged.
func Divide(dividend, divisor uint64) (quotient, remainder uint64) {
	if divisor == 0 {
		return ^uint64(0), dividend
	}
	shiftAmount := uint64(63 - bits.LeadingZeros64(divisor))
	approx := dividend >> shiftAmount
	represented := approx << shiftAmount
	remainderTemp := dividend - represented
	if halfDivisor := divisor >> 1; remainderTemp >= halfDivisor {
		approx++
	}
	quotient = approx
	remainder = dividend - (quotient << shiftAmount)
	return quotient, remainder
}

// ExecuteALU performs the arithmetic/logic/shift op, adapted from
// SupraX.go's ExecuteALU plus the new branch opcodes (handled by the
// caller, not here, since they affect control flow rather than a
// register result).
func ExecuteALU(opcode uint8, a, b uint64) uint64 {
	switch opcode {
	case OpADD, OpADDI:
		return a + b
	case OpSUB:
		return a - b
	case OpAND:
		return a & b
	case OpOR:
		return a | b
	case OpXOR:
		return a ^ b
	case OpNOT:
		return ^a
	case OpSHL:
		return BarrelShift(a, uint8(b), true)
	case OpSHR:
		return BarrelShift(a, uint8(b), false)
	case OpMOV, OpMOVI:
		return b
	default:
		return 0
	}
}

// Memory is a flat byte-addressable guest memory, backing both
// instruction fetch and MOVL/MOVS data access.
type Memory struct {
	data []byte
}

func NewMemory(sizeBytes int) *Memory {
	return &Memory{data: make([]byte, sizeBytes)}
}

func (m *Memory) ReadU16(addr uint64) uint16 {
	if int(addr)+1 >= len(m.data) {
		return 0
	}
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8
}

func (m *Memory) WriteU16(addr uint64, v uint16) {
	if int(addr)+1 >= len(m.data) {
		return
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
}

func (m *Memory) ReadU64(addr uint64) uint64 {
	if int(addr)+8 > len(m.data) {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(m.data[int(addr)+i]) << (8 * i)
	}
	return v
}

func (m *Memory) WriteU64(addr uint64, v uint64) {
	if int(addr)+8 > len(m.data) {
		return
	}
	for i := 0; i < 8; i++ {
		m.data[int(addr)+i] = byte(v >> (8 * i))
	}
}

// Context is the guest architectural state for one hardware thread:
// registers, program counter, and a running/dealloc/spec status. It
// implements core.GuestContext.
type Context struct {
	Regs           [16]uint64
	eip            uint64
	targetEIP      uint64
	running        bool
	dealloc        bool
	spec           bool
	compareResult  uint8
	Mem            *Memory
}

func NewContext(mem *Memory) *Context {
	return &Context{Mem: mem, running: true}
}

func (c *Context) Running() bool         { return c.running }
func (c *Context) DeallocPending() bool  { return c.dealloc }
func (c *Context) SpecMode() bool        { return c.spec }
func (c *Context) EIP() uint64           { return c.eip }
func (c *Context) SetEIP(addr uint64)    { c.eip = addr }
func (c *Context) TargetEIP() uint64     { return c.targetEIP }
func (c *Context) RegsEIP() uint64       { return c.eip }

// SetRunning, SetDeallocPending, and SetSpecMode let callers (tests,
// the CLI demo) drive context lifecycle transitions that in a full
// simulator would come from the execute/commit stages.
func (c *Context) SetRunning(v bool)         { c.running = v }
func (c *Context) SetDeallocPending(v bool)  { c.dealloc = v }
func (c *Context) SetSpecMode(v bool)        { c.spec = v }

// Execute single-steps one macro-instruction: it decodes the 16-bit
// word at the current EIP, mutates architectural state, and appends
// exactly one uinst to the sink (this ISA is 1:1 macro-instruction to
// uinst; a richer guest ISA could append more than one).
func (c *Context) Execute(sink core.UinstSink) core.InstResult {
	word := c.Mem.ReadU16(c.eip)
	inst := Decode(word)

	if !validOpcode(inst.Opcode) {
		return core.InstResult{Size: 0}
	}

	var flags core.UinstFlags
	var memAddr uint64
	dest, src1, src2 := inst.Dst, inst.Src1, inst.Src2
	nextEIP := c.eip + 2
	c.targetEIP = 0

	switch inst.Opcode {
	case OpBRA:
		flags = core.FlagCtrl
		c.targetEIP = uint64(int64(c.eip) + 2 + int64(inst.Offset)*2)
		nextEIP = c.targetEIP
	case OpBT:
		flags = core.FlagCtrl
		target := uint64(int64(c.eip) + 2 + int64(inst.Offset)*2)
		c.targetEIP = target
		if c.compareResult == CmpEqual {
			nextEIP = target
		}
	case OpCMP:
		a, b := c.Regs[inst.Dst], operand2(c, inst, false)
		switch {
		case a == b:
			c.compareResult = CmpEqual
		case a < b:
			c.compareResult = CmpLess
		default:
			c.compareResult = CmpGreater
		}
	case OpMOVL:
		flags = core.FlagMem
		memAddr = c.Regs[inst.Src1]
		c.Regs[inst.Dst] = c.Mem.ReadU64(memAddr)
	case OpMOVS:
		flags = core.FlagMem
		memAddr = c.Regs[inst.Dst]
		c.Mem.WriteU64(memAddr, c.Regs[inst.Src1])
	default:
		useImm := inst.Opcode == OpADDI || inst.Opcode == OpMOVI
		result := ExecuteALU(inst.Opcode, c.Regs[inst.Dst], operand2(c, inst, useImm))
		c.Regs[inst.Dst] = result
	}

	c.eip = nextEIP

	sink.Append(core.Uinst{
		Opcode:  inst.Opcode,
		Flags:   flags,
		Dest:    dest,
		Src1:    src1,
		Src2:    src2,
		Address: memAddr,
		Disasm:  disasm(inst),
	})

	return core.InstResult{Size: 2, Disasm: disasm(inst)}
}

func operand2(c *Context, inst Instruction, useImm bool) uint64 {
	if useImm {
		return uint64(inst.Imm)
	}
	return c.Regs[inst.Src2]
}

func validOpcode(op uint8) bool {
	return op <= OpMOVI
}

func disasm(inst Instruction) string {
	switch inst.Opcode {
	case OpBRA:
		return fmt.Sprintf("bra %d", inst.Offset)
	case OpBT:
		return fmt.Sprintf("bt %d", inst.Offset)
	case OpADDI, OpMOVI:
		return fmt.Sprintf("op%x r%d, #%d", inst.Opcode, inst.Dst, inst.Imm)
	default:
		return fmt.Sprintf("op%x r%d, r%d", inst.Opcode, inst.Dst, inst.Src1)
	}
}
