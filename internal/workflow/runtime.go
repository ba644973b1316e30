// ABOUTME: Runtime interface the executor drives workflow bodies through
// ABOUTME: The gateway never interprets workflow logic itself

package workflow

import (
	"context"
)

// Runtime executes workflow bodies. Implementations are injected at
// gateway construction; the orchestration core treats them as opaque.
type Runtime interface {
	// Run executes the workflow with the validated inputs and returns its
	// result. A returned error marks the run failed.
	Run(ctx context.Context, h *Handle, inputs map[string]any) (map[string]any, error)

	// Cancel asks the runtime to stop the named run. The return value is
	// the acknowledgement: true means the runtime stopped the run and the
	// executor may mark it cancelled, false means the run already finished
	// or the runtime cannot interrupt it.
	Cancel(ctx context.Context, runID string) bool
}

// EchoRuntime returns its inputs unchanged. Used for smoke testing a
// deployed gateway end to end without a real workflow engine.
type EchoRuntime struct{}

func (EchoRuntime) Run(ctx context.Context, h *Handle, inputs map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		result[k] = v
	}
	result["workflow"] = h.ID
	return result, nil
}

// Cancel always reports false: echo runs complete synchronously, so there
// is never anything in flight to stop.
func (EchoRuntime) Cancel(ctx context.Context, runID string) bool { return false }
