// Package vm provides the Vainilla stack machine: the instruction and
// value model, the interpreter, and a disassembler.
//
// # Architecture Overview
//
//   - Opcodes: stack instructions covering literals, named variables,
//     arithmetic, line-based I/O and conditional jumps
//
//   - Instruction: a decoded opcode with at most one operand. Jump
//     operands are absolute indices, resolved by the assembler.
//
//   - Value: a 64-bit integer or a 64-bit float. Binary arithmetic on two
//     integers is computed in floating point and truncated back; any float
//     operand makes the result a float.
//
//   - VM: owns the stack, the variable bindings and the instruction
//     pointer. Step executes one instruction, Run steps until the
//     instruction pointer falls off the end of the program. There is no
//     HALT instruction.
//
// # Errors
//
// Failures are returned as *RuntimeError values wrapping ErrStackUnderflow,
// ErrVariableNotFound, ErrInvalidInput or ErrIPOutOfRange. The instruction
// pointer is left on the faulting instruction so a debugger can show it.
package vm
