package server

import (
	"bytes"
	"context"
	"errors"
	"math"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/vm"
)

// ErrStepLimit is reported when a call executes its whole step budget
// without the program halting.
var ErrStepLimit = errors.New("step limit exceeded")

// ============ Request fields ============

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

// countField returns a non-negative integer field, or 0 when absent.
func countField(msg *structpb.Struct, name string) uint64 {
	n := msg.GetFields()[name].GetNumberValue()
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	if n >= math.MaxInt64 {
		return math.MaxInt64
	}
	return uint64(n)
}

// ============ Response builders ============

func newResponse(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func valueFields(v vm.Value) map[string]any {
	return map[string]any{
		"kind":  v.Kind().String(),
		"value": v.String(),
	}
}

// vmState describes a VM as response fields. Must be called on the
// goroutine that owns v.
func vmState(v *vm.VM, out *bytes.Buffer) map[string]any {
	stack := v.SnapshotStack()
	items := make([]any, len(stack))
	for i, val := range stack {
		items[i] = valueFields(val)
	}

	vars := make(map[string]any)
	for name, val := range v.SnapshotVars() {
		vars[name] = valueFields(val)
	}

	fields := map[string]any{
		"ip":     v.IP(),
		"steps":  v.Steps(),
		"halted": v.Halted(),
		"stack":  items,
		"vars":   vars,
	}
	if out != nil {
		fields["output"] = out.String()
	}
	if in, ok := v.CurrentInstruction(); ok {
		fields["current"] = in.String()
	}
	return fields
}

func diagnosticList(errs []*asm.Error) []any {
	list := make([]any, len(errs))
	for i, e := range errs {
		list[i] = map[string]any{
			"line":    e.Line,
			"column":  e.Column,
			"message": e.Error(),
		}
	}
	return list
}

// withRunTimeout bounds ctx by d. A non-positive d adds no deadline.
func withRunTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// runSteps executes up to limit instructions (0 means no limit), stopping
// early when the program halts, an instruction fails, or ctx is done.
func runSteps(ctx context.Context, v *vm.VM, limit uint64) error {
	for n := uint64(0); !v.Halted() && (limit == 0 || n < limit); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.Step(); err != nil {
			return err
		}
	}
	return nil
}
