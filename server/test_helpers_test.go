package server

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

const countdownSource = `
    LOAD_CONST 3
    STORE_VAR n
loop:
    LOAD_VAR n
    JMPLE done
    LOAD_VAR n
    PRINT
    LOAD_VAR n
    LOAD_CONST 1
    SUB
    STORE_VAR n
    JMP loop
done:
`

func newTestEvalService() *EvalService {
	return NewEvalService(2*time.Second, 100_000)
}

func newTestSessionService(t *testing.T) (*SessionService, *SessionStore) {
	t.Helper()
	store := NewSessionStore()
	t.Cleanup(store.DestroyAll)
	return NewSessionService(store, 2*time.Second, 100_000), store
}

// ---------------------------------------------------------------------------
// Request builder helpers.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

// structReq builds a request whose message carries fields.
func structReq(t *testing.T, fields map[string]any) *connect.Request[structpb.Struct] {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return connectReq(msg)
}

func str(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func num(msg *structpb.Struct, name string) float64 {
	return msg.GetFields()[name].GetNumberValue()
}

func flag(msg *structpb.Struct, name string) bool {
	return msg.GetFields()[name].GetBoolValue()
}

// stackTexts returns the printed values of the response's stack.
func stackTexts(msg *structpb.Struct) []string {
	var out []string
	for _, item := range msg.GetFields()["stack"].GetListValue().GetValues() {
		out = append(out, item.GetStructValue().GetFields()["value"].GetStringValue())
	}
	return out
}

func varText(msg *structpb.Struct, name string) (string, string, bool) {
	v, ok := msg.GetFields()["vars"].GetStructValue().GetFields()[name]
	if !ok {
		return "", "", false
	}
	f := v.GetStructValue().GetFields()
	return f["kind"].GetStringValue(), f["value"].GetStringValue(), true
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	if got := connect.CodeOf(err); got != want {
		t.Errorf("error code = %v, want %v (%v)", got, want, err)
	}
}
