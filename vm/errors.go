package vm

import (
	"errors"
	"fmt"
)

var (
	ErrStackUnderflow   = errors.New("stack underflow")
	ErrVariableNotFound = errors.New("variable not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrIPOutOfRange     = errors.New("instruction pointer out of range")
)

// RuntimeError reports a failed instruction. IP is the index of the
// faulting instruction, which is also where the VM's ip is left.
type RuntimeError struct {
	IP          int
	Instruction Instruction
	Err         error
}

func (e *RuntimeError) Error() string {
	if errors.Is(e.Err, ErrIPOutOfRange) {
		return fmt.Sprintf("ip %d: %v", e.IP, e.Err)
	}
	return fmt.Sprintf("ip %d (%s): %v", e.IP, e.Instruction, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
