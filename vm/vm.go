package vm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the Vainilla stack machine
// ---------------------------------------------------------------------------

// VM executes an assembled program against an evaluation stack and a
// named-variable store. A VM is not safe for concurrent use.
type VM struct {
	instructions []Instruction
	stack        []Value
	vars         map[string]Value
	ip           int
	steps        uint64

	in     *bufio.Reader
	out    io.Writer
	prompt string
	trace  bool
	log    commonlog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithInput sets the stream READ consumes lines from. Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(vm *VM) { vm.in = bufio.NewReader(r) }
}

// WithOutput sets the stream PRINT and the READ prompt write to.
// Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithPrompt sets text written before each READ blocks.
func WithPrompt(prompt string) Option {
	return func(vm *VM) { vm.prompt = prompt }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(trace bool) Option {
	return func(vm *VM) { vm.trace = trace }
}

// WithLogger replaces the VM's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// New creates a VM for prog. The program must not be modified while the
// VM is in use.
func New(prog []Instruction, opts ...Option) *VM {
	vm := &VM{
		instructions: prog,
		stack:        make([]Value, 0, 16),
		vars:         make(map[string]Value),
		out:          os.Stdout,
		log:          commonlog.GetLogger("vainilla.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.in == nil {
		vm.in = bufio.NewReader(os.Stdin)
	}
	return vm
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Step executes exactly one instruction. On failure ip stays on the
// faulting instruction and the stack is left as it was before it ran.
func (vm *VM) Step() error {
	if vm.Halted() {
		return &RuntimeError{IP: vm.ip, Err: ErrIPOutOfRange}
	}

	instr := vm.instructions[vm.ip]
	if vm.trace {
		vm.log.Debugf("[%04d] %-20s stack=%d", vm.ip, instr, len(vm.stack))
	}

	jumped, err := vm.execute(instr)
	if err != nil {
		return &RuntimeError{IP: vm.ip, Instruction: instr, Err: err}
	}
	vm.steps++
	if !jumped {
		vm.ip++
	}
	return nil
}

// Run steps until ip leaves the program.
func (vm *VM) Run() error {
	for !vm.Halted() {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunContext is Run with a cancellation check between instructions.
// A blocked READ is not interrupted.
func (vm *VM) RunContext(ctx context.Context) error {
	for !vm.Halted() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ip %d: %w", vm.ip, err)
		}
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// execute applies one instruction. It reports whether it set ip itself.
func (vm *VM) execute(instr Instruction) (bool, error) {
	switch instr.Op {
	case OpLoadConstInt:
		vm.push(IntValue(instr.Int))

	case OpLoadConstFloat:
		vm.push(FloatValue(instr.Float))

	case OpLoadVar:
		val, ok := vm.vars[instr.Name]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrVariableNotFound, instr.Name)
		}
		vm.push(val)

	case OpStoreVar:
		val, err := vm.pop()
		if err != nil {
			return false, err
		}
		vm.vars[instr.Name] = val

	case OpAdd:
		return false, vm.binaryOp(func(a, b float64) float64 { return a + b })
	case OpSub:
		return false, vm.binaryOp(func(a, b float64) float64 { return a - b })
	case OpMul:
		return false, vm.binaryOp(func(a, b float64) float64 { return a * b })
	case OpDiv:
		return false, vm.binaryOp(func(a, b float64) float64 { return a / b })
	case OpPow:
		return false, vm.binaryOp(math.Pow)
	case OpMod:
		return false, vm.binaryOp(math.Mod)

	case OpPrint:
		if len(vm.stack) == 0 {
			return false, fmt.Errorf("%w on print", ErrStackUnderflow)
		}
		if _, err := fmt.Fprintln(vm.out, vm.stack[len(vm.stack)-1]); err != nil {
			return false, fmt.Errorf("print: %w", err)
		}
		vm.stack = vm.stack[:len(vm.stack)-1]

	case OpRead:
		val, err := vm.read()
		if err != nil {
			return false, err
		}
		vm.push(val)

	case OpJmp:
		vm.ip = instr.Target
		return true, nil

	case OpJmpEq, OpJmpNe, OpJmpGt, OpJmpLt, OpJmpGe, OpJmpLe:
		if len(vm.stack) == 0 {
			return false, fmt.Errorf("%w on conditional jump", ErrStackUnderflow)
		}
		cond, _ := vm.pop()
		if compareZero(instr.Op, cond) {
			vm.ip = instr.Target
			return true, nil
		}

	default:
		return false, fmt.Errorf("unknown opcode 0x%02X", byte(instr.Op))
	}
	return false, nil
}

// binaryOp pops the right operand, then the left, and pushes op(left, right).
// Int op Int is computed in float64 and truncated back to Int; any Float
// operand makes the result a Float.
func (vm *VM) binaryOp(op func(a, b float64) float64) error {
	if len(vm.stack) < 2 {
		return fmt.Errorf("%w on binary operation", ErrStackUnderflow)
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	if a.IsInt() && b.IsInt() {
		vm.push(IntValue(truncate(op(float64(a.i), float64(b.i)))))
		return nil
	}
	vm.push(FloatValue(op(a.Number(), b.Number())))
	return nil
}

// compareZero evaluates a conditional jump's relation against zero.
func compareZero(op Opcode, v Value) bool {
	if v.IsInt() {
		switch op {
		case OpJmpEq:
			return v.i == 0
		case OpJmpNe:
			return v.i != 0
		case OpJmpGt:
			return v.i > 0
		case OpJmpLt:
			return v.i < 0
		case OpJmpGe:
			return v.i >= 0
		case OpJmpLe:
			return v.i <= 0
		}
		return false
	}
	switch op {
	case OpJmpEq:
		return v.f == 0
	case OpJmpNe:
		return v.f != 0
	case OpJmpGt:
		return v.f > 0
	case OpJmpLt:
		return v.f < 0
	case OpJmpGe:
		return v.f >= 0
	case OpJmpLe:
		return v.f <= 0
	}
	return false
}

// read consumes one line of input. A line is tried as a float first, then
// as an integer, so integral input is pushed as a Float.
func (vm *VM) read() (Value, error) {
	if vm.prompt != "" {
		if _, err := fmt.Fprint(vm.out, vm.prompt); err != nil {
			return Value{}, fmt.Errorf("read prompt: %w", err)
		}
	}
	line, err := vm.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil && line == "" {
		return Value{}, fmt.Errorf("%w: end of input", ErrInvalidInput)
	}

	text := strings.TrimSpace(line)
	if f, err := ParseFloat(text); err == nil {
		return FloatValue(f), nil
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(i), nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrInvalidInput, text)
}

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (Value, error) {
	if len(vm.stack) == 0 {
		return Value{}, ErrStackUnderflow
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// ---------------------------------------------------------------------------
// Inspection (read-only)
// ---------------------------------------------------------------------------

// IP returns the index of the instruction about to execute.
func (vm *VM) IP() int { return vm.ip }

// Steps returns the number of instructions executed successfully.
func (vm *VM) Steps() uint64 { return vm.steps }

// Halted reports whether ip has left the program.
func (vm *VM) Halted() bool {
	return vm.ip < 0 || vm.ip >= len(vm.instructions)
}

// CurrentInstruction returns the instruction at ip, if any.
func (vm *VM) CurrentInstruction() (Instruction, bool) {
	if vm.Halted() {
		return Instruction{}, false
	}
	return vm.instructions[vm.ip], true
}

// Instructions returns the program. Callers must not modify it.
func (vm *VM) Instructions() []Instruction { return vm.instructions }

// SnapshotStack returns a copy of the stack, bottom first.
func (vm *VM) SnapshotStack() []Value {
	return slices.Clone(vm.stack)
}

// SnapshotVars returns a copy of the variable bindings.
func (vm *VM) SnapshotVars() map[string]Value {
	return maps.Clone(vm.vars)
}

// VarNames returns the bound variable names, sorted.
func (vm *VM) VarNames() []string {
	names := make([]string, 0, len(vm.vars))
	for name := range vm.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
