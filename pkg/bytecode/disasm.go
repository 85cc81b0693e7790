package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing with no name
// header, handy for anonymous chunks such as a REPL line.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing for the
// chunk, one instruction per line: the source line (or "   |" when it is
// unchanged from the previous instruction), the offset, the mnemonic, and
// its decoded operands.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	}

	offset := 0
	lastLine := -1
	for offset < len(c.Code) {
		line, text, instrLen := c.disassembleInstruction(offset)

		if line == lastLine {
			sb.WriteString("   | ")
		} else {
			sb.WriteString(fmt.Sprintf("%4d ", line))
			lastLine = line
		}

		sb.WriteString(fmt.Sprintf("%04d %s\n", offset, text))
		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction renders the instruction at offset, returning its
// source line, its formatted mnemonic, and its length in bytes.
func (c *Chunk) disassembleInstruction(offset int) (int, string, int) {
	line := c.LineAt(offset)

	if offset >= len(c.Code) {
		return line, "<end of code>", 0
	}

	op := Opcode(c.Code[offset])

	switch op {
	case OpConstant:
		idx := c.Code[offset+1]
		return line, c.formatConstantInstruction(op, idx), 2

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		operand := c.Code[offset+1]
		return line, fmt.Sprintf("%-16s %4d", op, operand), 2

	case OpGetGlobal, OpSetGlobal, OpDefineGlobal,
		OpGetProperty, OpSetProperty, OpGetSuper,
		OpClass, OpMethod:
		idx := c.Code[offset+1]
		return line, c.formatConstantInstruction(op, idx), 2

	case OpInvoke, OpSuperInvoke:
		nameIdx := c.Code[offset+1]
		argCount := c.Code[offset+2]
		name := c.constantDisplay(nameIdx)
		return line, fmt.Sprintf("%-16s (%d args) %4d '%s'", op, argCount, nameIdx, name), 3

	case OpJump, OpLoop, OpJumpIfFalse:
		delta := int(binary.BigEndian.Uint16(c.Code[offset+1 : offset+3]))
		sign := 1
		if op == OpLoop {
			sign = -1
		}
		target := offset + 3 + sign*delta
		return line, fmt.Sprintf("%-16s %4d -> %d", op, offset, target), 3

	case OpClosure:
		funcIdx := c.Code[offset+1]
		text := c.formatConstantInstruction(op, funcIdx)
		instrLen := 2
		if int(funcIdx) < len(c.Constants) && c.Constants[funcIdx].IsFunction() {
			fn := c.Constants[funcIdx].AsFunction()
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[offset+instrLen]
				index := c.Code[offset+instrLen+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				text += fmt.Sprintf("\n%04d      |                     %s %d", offset+instrLen, kind, index)
				instrLen += 2
			}
		}
		return line, text, instrLen

	default:
		info := GetOpcodeInfo(op)
		return line, info.Name, 1 + info.OperandLen
	}
}

func (c *Chunk) formatConstantInstruction(op Opcode, idx byte) string {
	return fmt.Sprintf("%-16s %4d '%s'", op, idx, c.constantDisplay(idx))
}

func (c *Chunk) constantDisplay(idx byte) string {
	if int(idx) >= len(c.Constants) {
		return "?"
	}
	return c.Constants[idx].String()
}

// DisassembleInstruction returns a human-readable representation of a
// single instruction, without its line number, for interactive inspection.
func (c *Chunk) DisassembleInstruction(offset int) string {
	_, text, _ := c.disassembleInstruction(offset)
	return text
}
