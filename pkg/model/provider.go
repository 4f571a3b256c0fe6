package model

import (
	"context"

	"github.com/nstogner/dispatch/pkg/domain"
)

// Role indicates the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one message in the model's conversation context.
type Message struct {
	Role Role

	// Text content. For RoleTool messages this is the directive that frames
	// the attached tool results.
	Text string

	// ToolCalls carried by an assistant message.
	ToolCalls []domain.ToolCall

	// ToolResults carried by a tool message.
	ToolResults []domain.ToolResult
}

// FragmentKind discriminates streaming fragments.
type FragmentKind string

const (
	// FragmentText is a plain text delta.
	FragmentText FragmentKind = "text"
	// FragmentToolCall announces a tool call requested by the model.
	FragmentToolCall FragmentKind = "tool_call"
)

// Fragment is one unit of a streaming model response. Consumers ignore kinds
// they do not recognize and keep iterating.
type Fragment struct {
	Kind     FragmentKind
	Delta    string
	ToolCall *domain.ToolCall
}

// Provider represents a service that provides LLMs (e.g. Gemini).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// CountTokens returns the token count for the given request as the
	// provider would bill it.
	CountTokens(ctx context.Context, modelID, instructions string, messages []Message) (int, error)

	// Stream sends one request to the LLM and returns a fragment stream.
	// instructions is the system prompt; tools declares the callable tools.
	Stream(ctx context.Context, modelID, instructions string, messages []Message, tools []domain.ToolSpec) (Stream, error)
}

// Stream is a cancellable streaming model response.
type Stream interface {
	// Next returns the next fragment, or io.EOF when the stream completes.
	Next() (Fragment, error)

	// Close releases resources and cancels any in-flight read.
	Close() error
}
