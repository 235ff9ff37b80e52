package server

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/vm"
)

// SessionService drives step-debugging sessions.
type SessionService struct {
	sessions   *SessionStore
	runTimeout time.Duration
	maxSteps   uint64
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions *SessionStore, runTimeout time.Duration, maxSteps uint64) *SessionService {
	return &SessionService{
		sessions:   sessions,
		runTimeout: runTimeout,
		maxSteps:   maxSteps,
	}
}

// Open assembles source and starts a session paused before the first
// instruction.
func (s *SessionService) Open(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source := stringField(req.Msg, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	prog, err := asm.Assemble(source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	session := s.sessions.Create(stringField(req.Msg, "name"), prog, stringField(req.Msg, "input"))
	return s.state(session, nil)
}

// Step executes count instructions (default 1). A failing instruction
// ends the call early; the session stays on the faulting instruction.
func (s *SessionService) Step(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	session, err := s.lookup(req.Msg)
	if err != nil {
		return nil, err
	}

	count := countField(req.Msg, "count")
	if count == 0 {
		count = 1
	}
	if s.maxSteps > 0 && count > s.maxSteps {
		count = s.maxSteps
	}

	runCtx, cancel := withRunTimeout(ctx, s.runTimeout)
	defer cancel()

	return s.state(session, func(v *vm.VM) error {
		return runSteps(runCtx, v, count)
	})
}

// Inspect returns the session's state without executing anything.
func (s *SessionService) Inspect(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	session, err := s.lookup(req.Msg)
	if err != nil {
		return nil, err
	}
	return s.state(session, nil)
}

// Close ends a session.
func (s *SessionService) Close(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := stringField(req.Msg, "session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return newResponse(map[string]any{})
}

func (s *SessionService) lookup(msg *structpb.Struct) (*Session, error) {
	id := stringField(msg, "session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// state optionally runs fn on the session's VM, then reports the VM state.
func (s *SessionService) state(session *Session, fn func(*vm.VM) error) (*connect.Response[structpb.Struct], error) {
	result, err := session.Do(func(v *vm.VM, out *bytes.Buffer) any {
		var runErr error
		if fn != nil {
			runErr = fn(v)
		}
		fields := vmState(v, out)
		fields["session"] = session.ID
		fields["ok"] = runErr == nil
		if runErr != nil {
			fields["error"] = runErr.Error()
		}
		return fields
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return newResponse(result.(map[string]any))
}
