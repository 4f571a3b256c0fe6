package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/dispatch/pkg/domain"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "dispatch.db"))
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleConversation(id string) *domain.Conversation {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Conversation{
		ID:            id,
		Goal:          "index the repo",
		Model:         "models/gemini-2.5-flash",
		MaxTurns:      10,
		Title:         "repo indexing",
		Status:        domain.StatusTaskComplete,
		Turn:          4,
		TokensUsed:    1234,
		FinalResponse: "All files indexed.",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func sampleHistory() []domain.HistoryEntry {
	return []domain.HistoryEntry{
		{
			Kind: domain.EntryAssistant,
			Turn: 1,
			Assistant: &domain.AssistantEntry{
				Text:      "Scanning.",
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
	}
}

func TestSaveAndGet(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	conv := sampleConversation("conv-1")
	if err := a.Save(ctx, conv, sampleHistory()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, history, err := a.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Goal != conv.Goal {
		t.Errorf("goal = %q, want %q", got.Goal, conv.Goal)
	}
	if got.Status != domain.StatusTaskComplete {
		t.Errorf("status = %q, want %q", got.Status, domain.StatusTaskComplete)
	}
	if got.TokensUsed != 1234 {
		t.Errorf("tokens = %d, want 1234", got.TokensUsed)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Assistant.Text != "Scanning." {
		t.Errorf("history[0] text = %q, want Scanning.", history[0].Assistant.Text)
	}
	if history[1].ToolResults.Results[0].Content != "main.go" {
		t.Errorf("tool result = %q, want main.go", history[1].ToolResults.Results[0].Content)
	}
}

func TestSaveUpserts(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	conv := sampleConversation("conv-1")
	conv.Status = domain.StatusError
	conv.Error = "transient"
	if err := a.Save(ctx, conv, nil); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	conv.Status = domain.StatusTaskComplete
	conv.Error = ""
	conv.Turn = 7
	if err := a.Save(ctx, conv, sampleHistory()); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, history, err := a.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusTaskComplete || got.Turn != 7 || got.Error != "" {
		t.Errorf("upsert not applied: %+v", got)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}

	convs, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("list length = %d, want 1 (upsert, not insert)", len(convs))
	}
}

func TestListOmitsHistory(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := a.Save(ctx, sampleConversation(id), sampleHistory()); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	convs, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(convs) != 3 {
		t.Errorf("list length = %d, want 3", len(convs))
	}
}

func TestSearch(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	indexing := sampleConversation("conv-1")
	if err := a.Save(ctx, indexing, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	weather := sampleConversation("conv-2")
	weather.Goal = "check the weather in Oslo"
	weather.Title = "weather"
	weather.FinalResponse = "Cloudy, 8C."
	if err := a.Save(ctx, weather, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := a.Search(ctx, "weather")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "conv-2" {
		t.Errorf("search result = %+v, want conv-2 only", got)
	}

	got, err = a.Search(ctx, "Cloudy")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("final-response search result count = %d, want 1", len(got))
	}
}

func TestDelete(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	if err := a.Save(ctx, sampleConversation("conv-1"), nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := a.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := a.Get(ctx, "conv-1"); err == nil {
		t.Error("Get succeeded after Delete")
	}
	if err := a.Delete(ctx, "conv-1"); err == nil {
		t.Error("second Delete did not fail")
	}
}
