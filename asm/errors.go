package asm

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateLabel     = errors.New("duplicate label")
	ErrLabelNotFound      = errors.New("label not found")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrMissingOperand     = errors.New("missing operand")
	ErrInvalidNumber      = errors.New("invalid number")
)

// Error is an assembly error tied to a source line.
type Error struct {
	Line   int    // 1-based source line
	Column int    // 1-based column of the offending token, 0 if unknown
	Token  string // offending token, if any
	Err    error
}

func (e *Error) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Token)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
