package vm

import (
	"fmt"
	"sort"
)

// Opcode identifies an instruction kind.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Literals (0x10-0x1F)
	// ========================================================================

	OpLoadConstInt   Opcode = 0x10 // Push integer literal
	OpLoadConstFloat Opcode = 0x11 // Push float literal

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoadVar  Opcode = 0x20 // Push copy of named variable
	OpStoreVar Opcode = 0x21 // Pop and bind to named variable

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push a + b (b is TOS)
	OpSub Opcode = 0x51 // Pop two, push a - b
	OpMul Opcode = 0x52 // Pop two, push a * b
	OpDiv Opcode = 0x53 // Pop two, push a / b
	OpPow Opcode = 0x54 // Pop two, push a ** b
	OpMod Opcode = 0x55 // Pop two, push a % b (truncated, sign of a)

	// ========================================================================
	// I/O (0x70-0x7F)
	// ========================================================================

	OpPrint Opcode = 0x70 // Pop and write one value
	OpRead  Opcode = 0x71 // Read one line, push parsed number

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJmp   Opcode = 0x80 // Unconditional jump
	OpJmpEq Opcode = 0x81 // Pop, jump if == 0
	OpJmpNe Opcode = 0x82 // Pop, jump if != 0
	OpJmpGt Opcode = 0x83 // Pop, jump if > 0
	OpJmpLt Opcode = 0x84 // Pop, jump if < 0
	OpJmpGe Opcode = 0x85 // Pop, jump if >= 0
	OpJmpLe Opcode = 0x86 // Pop, jump if <= 0
)

// OperandKind describes the single operand an instruction carries.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandFloat
	OperandName
	OperandTarget
)

// String returns a human-readable name for OperandKind.
func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandInt:
		return "int"
	case OperandFloat:
		return "float"
	case OperandName:
		return "name"
	case OperandTarget:
		return "label"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// OpcodeInfo provides metadata about each opcode for debugging, editor
// support and validation.
type OpcodeInfo struct {
	Name      string      // Source mnemonic
	StackPop  int         // How many values popped from stack
	StackPush int         // How many values pushed to stack
	Operand   OperandKind // Operand carried by the instruction
	Doc       string      // One-line description
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Literals
	OpLoadConstInt:   {"LOAD_CONST", 0, 1, OperandInt, "Push a numeric literal; integral literals are stored as integers."},
	OpLoadConstFloat: {"LOAD_CONST", 0, 1, OperandFloat, "Push a numeric literal; integral literals are stored as integers."},

	// Variables
	OpLoadVar:  {"LOAD_VAR", 0, 1, OperandName, "Push the value bound to a variable."},
	OpStoreVar: {"STORE_VAR", 1, 0, OperandName, "Pop the top of stack and bind it to a variable."},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, OperandNone, "Pop b then a, push a + b."},
	OpSub: {"SUB", 2, 1, OperandNone, "Pop b then a, push a - b."},
	OpMul: {"MUL", 2, 1, OperandNone, "Pop b then a, push a * b."},
	OpDiv: {"DIV", 2, 1, OperandNone, "Pop b then a, push a / b."},
	OpPow: {"POW", 2, 1, OperandNone, "Pop b then a, push a raised to b."},
	OpMod: {"MOD", 2, 1, OperandNone, "Pop b then a, push the remainder of a / b."},

	// I/O
	OpPrint: {"PRINT", 1, 0, OperandNone, "Pop one value and print it on its own line."},
	OpRead:  {"READ", 0, 1, OperandNone, "Read one line of input and push it as a number."},

	// Control flow
	OpJmp:   {"JMP", 0, 0, OperandTarget, "Jump to a label."},
	OpJmpEq: {"JMPEQ", 1, 0, OperandTarget, "Pop a value, jump to a label if it is equal to zero."},
	OpJmpNe: {"JMPNE", 1, 0, OperandTarget, "Pop a value, jump to a label if it is not zero."},
	OpJmpGt: {"JMPGT", 1, 0, OperandTarget, "Pop a value, jump to a label if it is greater than zero."},
	OpJmpLt: {"JMPLT", 1, 0, OperandTarget, "Pop a value, jump to a label if it is less than zero."},
	OpJmpGe: {"JMPGE", 1, 0, OperandTarget, "Pop a value, jump to a label if it is zero or greater."},
	OpJmpLe: {"JMPLE", 1, 0, OperandTarget, "Pop a value, jump to a label if it is zero or less."},
}

// mnemonicTable maps source mnemonics to opcodes. LOAD_CONST maps to the
// integer form; the assembler picks the float form from the literal.
var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		if op == OpLoadConstFloat {
			continue
		}
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupMnemonic returns the opcode for a source mnemonic.
func LookupMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonicTable[name]
	return op, ok
}

// Mnemonics returns every source mnemonic, sorted.
func Mnemonics() []string {
	names := make([]string, 0, len(mnemonicTable))
	for name := range mnemonicTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Operand returns the operand kind for this opcode.
func (op Opcode) Operand() OperandKind {
	return GetOpcodeInfo(op).Operand
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJmpLe
}

// IsConditionalJump returns true for jumps that pop a condition.
func (op Opcode) IsConditionalJump() bool {
	return op > OpJmp && op <= OpJmpLe
}

// IsArithmetic returns true for the binary arithmetic opcodes.
func (op Opcode) IsArithmetic() bool {
	return op >= OpAdd && op <= OpMod
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}
