package engine

import (
	"strings"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/model"
)

// toolResultDirective frames replayed tool results so the agent either keeps
// working or declares completion explicitly.
const toolResultDirective = "Tool results follow. Continue working toward the goal, " +
	"or respond with " + CompletionMarker + " if the goal is now achieved."

// BuildMessages assembles the message set for one turn: the goal-plus-
// instructions message first, then the history replayed as alternating
// assistant and tool-result messages. The goal lives only in the first
// message, never in the history, so it is re-injected here on every turn.
//
// This is a pure function shared by the turn executor and the token counter.
func BuildMessages(goal, instructions string, history []domain.HistoryEntry) []model.Message {
	messages := []model.Message{{
		Role: model.RoleUser,
		Text: goalMessage(goal, instructions),
	}}

	for _, entry := range history {
		switch entry.Kind {
		case domain.EntryAssistant:
			messages = append(messages, model.Message{
				Role:      model.RoleAssistant,
				Text:      entry.Assistant.Text,
				ToolCalls: entry.Assistant.ToolCalls,
			})
		case domain.EntryToolResults:
			messages = append(messages, model.Message{
				Role:        model.RoleTool,
				Text:        toolResultDirective,
				ToolResults: entry.ToolResults.Results,
			})
		}
	}

	return messages
}

func goalMessage(goal, instructions string) string {
	var b strings.Builder
	b.WriteString("Your goal:\n\n")
	b.WriteString(goal)
	if instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(instructions)
	}
	b.WriteString("\n\nWork toward the goal autonomously. When the goal is fully achieved, ")
	b.WriteString("respond with " + CompletionMarker + ". ")
	b.WriteString("If more work remains after this turn, respond with " + ContinuationMarker + ".")
	return b.String()
}
