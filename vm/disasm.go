package vm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LabelName is the label Disassemble synthesizes for a jump target.
func LabelName(target int) string {
	return "L" + strconv.Itoa(target)
}

// Disassemble renders prog back to assembler source. Every jump target
// gets a synthesized label, so assembling the listing of a program built
// by the assembler yields that program again. A hand-built float literal
// with an integral value has no source form and reassembles as an Int.
func Disassemble(prog []Instruction) string {
	return DisassembleWithName(prog, "")
}

// DisassembleWithName is Disassemble with a comment header naming the program.
func DisassembleWithName(prog []Instruction, name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions\n", len(prog)))

	targets := make(map[int]bool)
	for _, in := range prog {
		if in.Op.IsJump() {
			targets[in.Target] = true
		}
	}

	for i, in := range prog {
		if targets[i] {
			sb.WriteString(LabelName(i))
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(sourceLine(in))
		sb.WriteString("\n")
	}

	// Targets at or past the end halt the program.
	var tail []int
	for t := range targets {
		if t >= len(prog) {
			tail = append(tail, t)
		}
	}
	sort.Ints(tail)
	for _, t := range tail {
		sb.WriteString(LabelName(t))
		sb.WriteString(":\n")
	}

	return sb.String()
}

// sourceLine renders one instruction in assembler syntax.
func sourceLine(in Instruction) string {
	switch in.Op.Operand() {
	case OperandInt:
		return "LOAD_CONST " + strconv.FormatInt(in.Int, 10)
	case OperandFloat:
		return "LOAD_CONST " + strconv.FormatFloat(in.Float, 'g', -1, 64)
	case OperandName:
		return in.Op.String() + " " + in.Name
	case OperandTarget:
		return in.Op.String() + " " + LabelName(in.Target)
	default:
		return in.Op.String()
	}
}

// Listing returns one instruction per line prefixed with its index, the
// form the CLI's parse command prints.
func Listing(prog []Instruction) string {
	var sb strings.Builder
	for i, in := range prog {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", i, in))
	}
	return sb.String()
}
