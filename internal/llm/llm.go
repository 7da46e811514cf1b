package llm

import (
	"context"
	"fmt"

	"github.com/soukhq/souk/config"
)

// Message represents a message in a conversation
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is a single model response: either plain text or tool calls.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the narrow contract the agent loop, the retrieval pipeline and the
// negotiation judge depend on. Tests substitute a deterministic stub.
type Provider interface {
	// Chat sends a conversation with optional bound tools and returns the
	// model's next completion.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (Completion, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// NewProvider creates an LLM provider based on configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}
