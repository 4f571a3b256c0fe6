package domain

import "time"

// Conversation is one agent session working toward one goal. The goal, model,
// turn budget, caller, and title are fixed for the session; everything else is
// mutated by the loop, one update per turn, through the registry.
//
// The goal is never written into the history. It is re-injected into the
// message set on every turn so it cannot be truncated away.
type Conversation struct {
	ID           string `json:"id"`
	Goal         string `json:"goal"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model"`
	MaxTurns     int    `json:"max_turns"`
	Caller       string `json:"caller,omitempty"`
	Title        string `json:"title,omitempty"`

	Status        Status    `json:"status"`
	Turn          int       `json:"turn"`
	TokensUsed    int       `json:"tokens_used"`
	Error         string    `json:"error,omitempty"`
	FinalResponse string    `json:"final_response,omitempty"`
	Cancelled     bool      `json:"cancelled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntryKind discriminates the two history entry variants.
type EntryKind string

const (
	// EntryAssistant holds the assistant's raw text and the tool calls it requested.
	EntryAssistant EntryKind = "assistant"
	// EntryToolResults holds the results of executing an assistant entry's tool calls.
	EntryToolResults EntryKind = "tool_results"
)

// HistoryEntry is one record in a conversation's append-only history.
// Exactly one of Assistant or ToolResults is set, selected by Kind.
type HistoryEntry struct {
	Kind EntryKind `json:"kind"`
	Turn int       `json:"turn"`

	Assistant   *AssistantEntry   `json:"assistant,omitempty"`
	ToolResults *ToolResultsEntry `json:"tool_results,omitempty"`
}

// AssistantEntry is the assistant output of one turn.
type AssistantEntry struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolResultsEntry holds the settled results for every tool call of one turn.
type ToolResultsEntry struct {
	Results []ToolResult `json:"results"`
}

// TurnResult is the transient output of one turn executor invocation. It is
// folded into the history and kept as the loop's last known response for
// error and cancellation summaries; it is not persisted beyond that.
type TurnResult struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Turn      int        `json:"turn"`
}

// ToolCall is a tool invocation requested by the model. IDs correlate a call
// to its result and are never reused.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the settled outcome of one tool call: a normal result, an
// error message, or a timeout marker. A timeout is a result, not an error, so
// the agent sees it and can adapt on the next turn.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// ToolSpec declares a callable tool to the model: its name, a description,
// and a JSON-schema-shaped input description.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	// Unsafe marks tools that write to or mutate the host. Unsafe tools are
	// withheld unless the caller opts in.
	Unsafe bool `json:"unsafe,omitempty"`
}

// Model describes an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}
