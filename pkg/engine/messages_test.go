package engine

import (
	"strings"
	"testing"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/model"
)

func TestBuildMessagesEmptyHistory(t *testing.T) {
	messages := BuildMessages("find the bug", "be brief", nil)

	if len(messages) != 1 {
		t.Fatalf("message count = %d, want 1", len(messages))
	}
	first := messages[0]
	if first.Role != model.RoleUser {
		t.Errorf("role = %q, want %q", first.Role, model.RoleUser)
	}
	if !strings.Contains(first.Text, "find the bug") {
		t.Error("goal missing from first message")
	}
	if !strings.Contains(first.Text, "be brief") {
		t.Error("instructions missing from first message")
	}
	if !strings.Contains(first.Text, CompletionMarker) {
		t.Error("completion marker instructions missing")
	}
	if !strings.Contains(first.Text, ContinuationMarker) {
		t.Error("continuation marker instructions missing")
	}
}

func TestBuildMessagesReplaysHistory(t *testing.T) {
	history := []domain.HistoryEntry{
		{
			Kind: domain.EntryAssistant,
			Turn: 1,
			Assistant: &domain.AssistantEntry{
				Text:      "Let me check.",
				ToolCalls: []domain.ToolCall{{ID: "c1", Name: "ls", Input: map[string]any{"path": "."}}},
			},
		},
		{
			Kind: domain.EntryToolResults,
			Turn: 1,
			ToolResults: &domain.ToolResultsEntry{
				Results: []domain.ToolResult{{ToolCallID: "c1", ToolName: "ls", Content: "main.go"}},
			},
		},
		{
			Kind:      domain.EntryAssistant,
			Turn:      2,
			Assistant: &domain.AssistantEntry{Text: "Found it."},
		},
	}

	messages := BuildMessages("inspect", "", history)

	if len(messages) != 4 {
		t.Fatalf("message count = %d, want 4", len(messages))
	}

	if messages[1].Role != model.RoleAssistant || messages[1].Text != "Let me check." {
		t.Errorf("messages[1] = %+v, want assistant 'Let me check.'", messages[1])
	}
	if len(messages[1].ToolCalls) != 1 {
		t.Errorf("messages[1] tool calls = %d, want 1", len(messages[1].ToolCalls))
	}

	if messages[2].Role != model.RoleTool {
		t.Errorf("messages[2].Role = %q, want %q", messages[2].Role, model.RoleTool)
	}
	if len(messages[2].ToolResults) != 1 || messages[2].ToolResults[0].Content != "main.go" {
		t.Errorf("messages[2] tool results = %+v, want ls output", messages[2].ToolResults)
	}
	if messages[2].Text == "" {
		t.Error("tool message missing the framing directive")
	}

	if messages[3].Role != model.RoleAssistant || messages[3].Text != "Found it." {
		t.Errorf("messages[3] = %+v, want final assistant entry", messages[3])
	}

	// The goal lives only in the first message.
	for i, msg := range messages[1:] {
		if strings.Contains(msg.Text, "inspect") {
			t.Errorf("messages[%d] contains the goal", i+1)
		}
	}
}
