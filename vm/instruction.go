package vm

import (
	"fmt"
	"strconv"
)

// Instruction is one decoded instruction. Only the operand field selected
// by Op.Operand() is meaningful; the others stay zero so instructions
// compare with ==.
type Instruction struct {
	Op     Opcode
	Int    int64   // OperandInt
	Float  float64 // OperandFloat
	Name   string  // OperandName
	Target int     // OperandTarget: absolute index into the program
}

func LoadConstInt(i int64) Instruction     { return Instruction{Op: OpLoadConstInt, Int: i} }
func LoadConstFloat(f float64) Instruction { return Instruction{Op: OpLoadConstFloat, Float: f} }
func LoadVar(name string) Instruction      { return Instruction{Op: OpLoadVar, Name: name} }
func StoreVar(name string) Instruction     { return Instruction{Op: OpStoreVar, Name: name} }

// Simple returns an instruction for an opcode that takes no operand.
func Simple(op Opcode) Instruction { return Instruction{Op: op} }

func Add() Instruction   { return Simple(OpAdd) }
func Sub() Instruction   { return Simple(OpSub) }
func Mul() Instruction   { return Simple(OpMul) }
func Div() Instruction   { return Simple(OpDiv) }
func Pow() Instruction   { return Simple(OpPow) }
func Mod() Instruction   { return Simple(OpMod) }
func Print() Instruction { return Simple(OpPrint) }
func Read() Instruction  { return Simple(OpRead) }

// Jump returns a jump instruction of the given kind.
func Jump(op Opcode, target int) Instruction { return Instruction{Op: op, Target: target} }

func Jmp(target int) Instruction   { return Jump(OpJmp, target) }
func JmpEq(target int) Instruction { return Jump(OpJmpEq, target) }
func JmpNe(target int) Instruction { return Jump(OpJmpNe, target) }
func JmpGt(target int) Instruction { return Jump(OpJmpGt, target) }
func JmpLt(target int) Instruction { return Jump(OpJmpLt, target) }
func JmpGe(target int) Instruction { return Jump(OpJmpGe, target) }
func JmpLe(target int) Instruction { return Jump(OpJmpLe, target) }

// Literal returns the value a LOAD_CONST instruction pushes.
func (in Instruction) Literal() (Value, bool) {
	switch in.Op {
	case OpLoadConstInt:
		return IntValue(in.Int), true
	case OpLoadConstFloat:
		return FloatValue(in.Float), true
	}
	return Value{}, false
}

// String renders the instruction for listings and the debugger. Jump
// targets are shown as absolute indices.
func (in Instruction) String() string {
	switch in.Op.Operand() {
	case OperandInt:
		return in.Op.String() + " " + strconv.FormatInt(in.Int, 10)
	case OperandFloat:
		return in.Op.String() + " " + formatFloat(in.Float)
	case OperandName:
		return in.Op.String() + " " + in.Name
	case OperandTarget:
		return fmt.Sprintf("%s @%d", in.Op, in.Target)
	default:
		return in.Op.String()
	}
}

// Validate checks that every opcode is defined and every jump target lies
// within [0, len(prog)]. A target equal to len(prog) halts the program.
func Validate(prog []Instruction) error {
	for i, in := range prog {
		if !in.Op.Valid() {
			return fmt.Errorf("instruction %d: unknown opcode 0x%02X", i, byte(in.Op))
		}
		if in.Op.IsJump() && (in.Target < 0 || in.Target > len(prog)) {
			return fmt.Errorf("instruction %d: %s target %d out of range [0, %d]", i, in.Op, in.Target, len(prog))
		}
		if in.Op.Operand() == OperandName && in.Name == "" {
			return fmt.Errorf("instruction %d: %s requires a variable name", i, in.Op)
		}
	}
	return nil
}
