package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/nstogner/dispatch/pkg/domain"
)

// toolTimeoutMessage is surfaced to the agent as a normal result so it can
// see the timeout and adapt on the next turn instead of the conversation
// aborting.
const toolTimeoutMessage = "Tool execution timed out after 30 seconds. Try a simpler approach."

// runTools executes every tool call of a turn concurrently, each under its
// own independent timeout. One call's timeout or error never aborts its
// siblings; the batch settles only once every call has resolved, timed out,
// or errored. Every input call ID appears exactly once in the output.
func (e *Engine) runTools(ctx context.Context, calls []domain.ToolCall, turn int) []domain.ToolResult {
	p := pool.NewWithResults[domain.ToolResult]()
	for _, call := range calls {
		p.Go(func() domain.ToolResult {
			return e.runTool(ctx, call, turn)
		})
	}
	return p.Wait()
}

func (e *Engine) runTool(ctx context.Context, call domain.ToolCall, turn int) domain.ToolResult {
	slog.Info("Executing tool", "tool", call.Name, "callID", call.ID, "turn", turn)

	// Detached from the conversation's cancellation: an already-dispatched
	// call runs to its own timeout or completion; the timeout context is the
	// gateway's cooperative cancellation signal.
	invokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.toolTimeout)
	defer cancel()

	type invokeResult struct {
		content string
		err     error
	}
	ch := make(chan invokeResult, 1)
	go func() {
		content, err := e.gateway.Invoke(invokeCtx, call.Name, call.Input)
		ch <- invokeResult{content, err}
	}()

	select {
	case r := <-ch:
		// A tool that honors its context returns the deadline error itself,
		// often a hair before our own timer fires. Both paths are the same
		// timeout and must produce the same timeout result.
		if errors.Is(r.err, context.DeadlineExceeded) && invokeCtx.Err() == context.DeadlineExceeded {
			return e.timeoutResult(call)
		}
		if r.err != nil {
			slog.Warn("Tool failed", "tool", call.Name, "callID", call.ID, "error", r.err)
			return domain.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    fmt.Sprintf("Error: %v", r.err),
				IsError:    true,
			}
		}
		return domain.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    r.content,
		}
	case <-time.After(e.toolTimeout):
		return e.timeoutResult(call)
	}
}

func (e *Engine) timeoutResult(call domain.ToolCall) domain.ToolResult {
	slog.Warn("Tool timed out", "tool", call.Name, "callID", call.ID, "timeout", e.toolTimeout)
	return domain.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    toolTimeoutMessage,
		TimedOut:   true,
	}
}
