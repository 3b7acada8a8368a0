package core

import "fmt"

// formatTraceLine renders one uop's emitted event record, matching
// the token order and conditionality of the original source exactly:
// id/core always present, spec="t" only when speculative, asm="..."
// only on the first uop of a macro-instruction, uasm/stg always last.
func formatTraceLine(coreIdx int, uop *Uop, macroDisasm string) string {
	line := fmt.Sprintf("x86.new_inst id=%d core=%d", uop.IDInCore, coreIdx)
	if uop.SpecMode {
		line += ` spec="t"`
	}
	if uop.MopIndex == 0 {
		line += fmt.Sprintf(" asm=%q", macroDisasm)
	}
	line += fmt.Sprintf(" uasm=%q stg=\"fe\"", uop.Uinst.Disasm)
	return line
}
