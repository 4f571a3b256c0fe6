package engine

import (
	"context"
	"log/slog"

	"github.com/nstogner/dispatch/pkg/domain"
)

// outcome is the per-turn classification driving the loop's continue/stop
// decision.
type outcome int

const (
	outcomeMaxTurns outcome = iota
	outcomeToolsExecuting
	outcomeTaskComplete
	outcomeAgentContinuing
	outcomeAgentFinished
)

// runLoop is the conversation state machine. Turns are strictly sequential:
// turn n+1 never begins before turn n's history append completes. The loop
// is iterative so stack depth is independent of turn count.
func (e *Engine) runLoop(ctx context.Context, id string, req Request, tok *CancelToken, specs []domain.ToolSpec) *Result {
	var last *domain.TurnResult

	for turn := 1; ; turn++ {
		if err := e.registry.Update(id, func(c *domain.Conversation) {
			c.Status = domain.StatusWorking
			c.Turn = turn
		}); err != nil {
			// The record was deleted out from under the run. Keep going so
			// the loop still reaches a terminal state, but say so once.
			slog.Warn("Conversation record gone mid-run", "conversationID", id, "error", err)
		}

		// The message set is re-assembled from the registry every turn, and
		// the goal is re-injected at the front: it never lives in history.
		history := e.registry.History(id)
		messages := BuildMessages(req.Goal, req.Instructions, history)

		// Token accounting happens before the network call so cost stays
		// visible even if the call fails.
		tokens := e.countTokens(ctx, req.Model, req.Instructions, messages)
		e.registry.Update(id, func(c *domain.Conversation) {
			c.TokensUsed += tokens
		})

		if turn > req.MaxTurns {
			return e.finish(id, domain.ReasonMaxTurnsReached, last, "")
		}

		turnResult, err := e.executeTurn(ctx, req.Model, req.Instructions, messages, specs, turn, tok)
		if err != nil {
			if IsCancellation(err) {
				return e.finish(id, domain.ReasonCancelled, last, "")
			}
			return e.finish(id, domain.ReasonError, last, err.Error())
		}
		last = turnResult

		e.registry.AppendHistory(id, domain.HistoryEntry{
			Kind: domain.EntryAssistant,
			Turn: turn,
			Assistant: &domain.AssistantEntry{
				Text:      turnResult.Text,
				ToolCalls: turnResult.ToolCalls,
			},
		})

		if len(turnResult.ToolCalls) > 0 {
			results := e.runTools(ctx, turnResult.ToolCalls, turn)
			e.registry.AppendHistory(id, domain.HistoryEntry{
				Kind:        domain.EntryToolResults,
				Turn:        turn,
				ToolResults: &domain.ToolResultsEntry{Results: results},
			})
		}

		switch e.classify(turn, req.MaxTurns, turnResult) {
		case outcomeMaxTurns:
			return e.finish(id, domain.ReasonMaxTurnsReached, last, "")
		case outcomeTaskComplete:
			return e.finish(id, domain.ReasonTaskComplete, last, "")
		case outcomeAgentFinished:
			return e.finish(id, domain.ReasonAgentFinished, last, "")
		case outcomeToolsExecuting, outcomeAgentContinuing:
			// Cancellation may arrive between turns, not only mid-stream.
			if tok.Requested() {
				tok.MarkHonored()
				return e.finish(id, domain.ReasonCancelled, last, "")
			}
		}
	}
}

// classify orders the outcomes: the turn ceiling first, then tool presence
// (an agent that both requests a tool and claims completion in the same turn
// is assumed to still be working), then completion, then continuation.
func (e *Engine) classify(turn, maxTurns int, tr *domain.TurnResult) outcome {
	if turn >= maxTurns {
		return outcomeMaxTurns
	}
	if len(tr.ToolCalls) > 0 {
		return outcomeToolsExecuting
	}
	if e.classifier.Completed(tr.Text) {
		return outcomeTaskComplete
	}
	if e.classifier.Continuing(tr.Text) {
		return outcomeAgentContinuing
	}
	return outcomeAgentFinished
}

// finish records the terminal state and returns the caller-facing result.
// Every terminal path returns the history accumulated to that point.
func (e *Engine) finish(id string, reason domain.Reason, last *domain.TurnResult, errMsg string) *Result {
	e.registry.Update(id, func(c *domain.Conversation) {
		c.Status = reason.Status()
		c.Error = errMsg
		if last != nil {
			c.FinalResponse = last.Text
		}
		if reason == domain.ReasonCancelled {
			c.Cancelled = true
		}
	})

	slog.Info("Conversation terminated",
		"conversationID", id,
		"reason", reason,
		"summary", reason.Describe(),
		"error", errMsg,
	)

	return &Result{
		ConversationID: id,
		History:        e.registry.History(id),
		Reason:         reason,
		LastResponse:   last,
		ErrorMessage:   errMsg,
	}
}
