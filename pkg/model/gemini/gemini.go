// Package gemini implements model.Provider using the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/model"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models that support content generation.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}

		if supportsGenerate {
			maxTokens := 0
			if m.InputTokenLimit > 0 {
				maxTokens = int(m.InputTokenLimit)
			}
			models = append(models, domain.Model{
				ID:        m.Name,
				Name:      m.DisplayName,
				Provider:  "gemini",
				MaxTokens: maxTokens,
			})
		}
	}
	return models, nil
}

// CountTokens returns the provider-side token count for the request.
func (p *Provider) CountTokens(ctx context.Context, modelID, instructions string, messages []model.Message) (int, error) {
	contents := toContents(messages)
	if instructions != "" {
		contents = append([]*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: instructions}},
		}}, contents...)
	}

	resp, err := p.client.Models.CountTokens(ctx, modelID, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// Stream sends one request to the model and returns a fragment stream.
func (p *Provider) Stream(ctx context.Context, modelID, instructions string, messages []model.Message, tools []domain.ToolSpec) (model.Stream, error) {
	slog.Debug("Gemini.Stream", "model", modelID, "messageCount", len(messages), "toolCount", len(tools))

	config := &genai.GenerateContentConfig{
		Tools: toolDeclarations(tools),
	}
	if instructions != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instructions}},
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	seq := p.client.Models.GenerateContentStream(streamCtx, modelID, toContents(messages), config)
	next, stop := iter.Pull2(iter.Seq2[*genai.GenerateContentResponse, error](seq))

	return &geminiStream{
		next:   next,
		stop:   stop,
		cancel: cancel,
	}, nil
}

// toContents converts engine messages to genai contents. Tool results are
// replayed as function responses on the user role, the way the API expects.
func toContents(messages []model.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		var parts []*genai.Part

		switch msg.Role {
		case model.RoleAssistant:
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Input,
					},
				})
			}
		case model.RoleTool:
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
			for _, tr := range msg.ToolResults {
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:   tr.ToolCallID,
						Name: tr.ToolName,
						Response: map[string]any{
							"result": tr.Content,
						},
					},
				})
			}
		default:
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
		}

		if len(parts) == 0 {
			continue
		}

		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func toolDeclarations(specs []domain.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}

	var decls []*genai.FunctionDeclaration
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schemaFromMap(spec.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// schemaFromMap converts a JSON-schema-shaped map to a genai.Schema. Only
// the subset the tool registry produces is handled.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}

	schema := &genai.Schema{}
	if typ, ok := m["type"].(string); ok {
		schema.Type = schemaType(typ)
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	switch req := m["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func schemaType(typ string) genai.Type {
	switch typ {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	}
	return genai.TypeUnspecified
}

// geminiStream adapts the pulled Gemini iterator to the fragment contract.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	cancel  context.CancelFunc
	pending []model.Fragment
}

var _ model.Stream = (*geminiStream)(nil)

// Next returns the next fragment, or io.EOF when the stream completes.
func (s *geminiStream) Next() (model.Fragment, error) {
	for {
		if len(s.pending) > 0 {
			frag := s.pending[0]
			s.pending = s.pending[1:]
			return frag, nil
		}

		resp, err, ok := s.next()
		if !ok {
			return model.Fragment{}, io.EOF
		}
		if err != nil {
			return model.Fragment{}, err
		}
		if resp == nil {
			continue
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					s.pending = append(s.pending, model.Fragment{
						Kind:  model.FragmentText,
						Delta: part.Text,
					})
				}
				if part.FunctionCall != nil {
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					s.pending = append(s.pending, model.Fragment{
						Kind: model.FragmentToolCall,
						ToolCall: &domain.ToolCall{
							ID:    id,
							Name:  fc.Name,
							Input: fc.Args,
						},
					})
				}
			}
		}
	}
}

// Close cancels the underlying request. The pull iterator winds down once
// the cancelled request returns; stop is not called here because a read may
// still be in flight on another goroutine.
func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}
