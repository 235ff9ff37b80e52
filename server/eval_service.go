package server

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/vm"
)

// EvalService assembles and runs whole programs. Every Run gets a fresh VM,
// so calls never share state.
type EvalService struct {
	runTimeout time.Duration
	maxSteps   uint64
}

// NewEvalService creates an EvalService.
func NewEvalService(runTimeout time.Duration, maxSteps uint64) *EvalService {
	return &EvalService{
		runTimeout: runTimeout,
		maxSteps:   maxSteps,
	}
}

// Assemble checks source and returns its instruction listing, or every
// assembly error found.
func (s *EvalService) Assemble(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source := stringField(req.Msg, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	prog, err := asm.Assemble(source)
	if err != nil {
		return newResponse(map[string]any{
			"ok":          false,
			"error":       err.Error(),
			"diagnostics": diagnosticList(asm.Diagnose(source)),
		})
	}

	return newResponse(map[string]any{
		"ok":           true,
		"instructions": len(prog),
		"listing":      vm.Listing(prog),
		"diagnostics":  []any{},
	})
}

// Run assembles source and executes it to completion. READ consumes lines
// of input; once input is exhausted READ fails with invalid input.
func (s *EvalService) Run(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source := stringField(req.Msg, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	prog, err := asm.Assemble(source)
	if err != nil {
		return newResponse(map[string]any{
			"ok":          false,
			"error":       err.Error(),
			"diagnostics": diagnosticList(asm.Diagnose(source)),
		})
	}

	var out bytes.Buffer
	machine := vm.New(prog,
		vm.WithInput(strings.NewReader(stringField(req.Msg, "input"))),
		vm.WithOutput(&out),
		vm.WithPrompt(""),
	)

	runCtx, cancel := withRunTimeout(ctx, s.runTimeout)
	defer cancel()

	if s.maxSteps == 0 {
		err = machine.RunContext(runCtx)
	} else {
		err = runSteps(runCtx, machine, s.maxSteps)
		if err == nil && !machine.Halted() {
			err = ErrStepLimit
		}
	}

	fields := vmState(machine, &out)
	fields["ok"] = err == nil
	if err != nil {
		log.Debugf("run failed: %s", err)
		fields["error"] = err.Error()
	}
	return newResponse(fields)
}
