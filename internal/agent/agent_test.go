package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/soukhq/souk/internal/capability"
	"github.com/soukhq/souk/internal/llm"
)

type scriptedChatter struct {
	script []llm.Completion
	err    error
	calls  [][]llm.Message
}

func (s *scriptedChatter) Chat(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef) (llm.Completion, error) {
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	s.calls = append(s.calls, messages)
	if len(s.script) == 0 {
		return llm.Completion{Content: "done"}, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next, nil
}

type staticHistory []llm.Message

func (h staticHistory) History(ctx context.Context, sessionID string) []llm.Message { return h }

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	r.Register(&capability.Tool{
		Name:        "check_stock",
		Description: "stub",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, actor capability.Actor, args map[string]any) map[string]any {
			return map[string]any{"success": true, "stock": 3}
		},
	})
	return r
}

func newTestAgent(chatter Chatter, registry *capability.Registry, history History) *Agent {
	return New(chatter, registry, history, "test-model", 3, log.New(io.Discard, "", 0))
}

func TestRespondPlainAnswerTerminatesImmediately(t *testing.T) {
	chatter := &scriptedChatter{script: []llm.Completion{{Content: "hello there"}}}
	a := newTestAgent(chatter, testRegistry(t), nil)

	reply, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "hi")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "hello there" {
		t.Fatalf("expected model text, got %q", reply.Text)
	}
	if reply.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", reply.Iterations)
	}
	if len(reply.Actions) != 0 {
		t.Fatalf("no tools were called, got %d actions", len(reply.Actions))
	}
}

func TestRespondExecutesToolsThenAnswers(t *testing.T) {
	chatter := &scriptedChatter{script: []llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "check_stock", Arguments: map[string]any{"product_id": "p1"}}}},
		{Content: "3 left in stock"},
	}}
	a := newTestAgent(chatter, testRegistry(t), nil)

	reply, err := a.Respond(context.Background(), capability.Actor{UserID: "u1"}, "sess-1", "is the teapot in stock?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "3 left in stock" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if reply.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", reply.Iterations)
	}
	if len(reply.Actions) != 1 || reply.Actions[0].Name != "check_stock" {
		t.Fatalf("expected recorded check_stock action, got %+v", reply.Actions)
	}

	// second call must carry the assistant tool_calls turn and the tool result
	second := chatter.calls[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call-1" {
		t.Fatalf("expected tool result message, got %+v", last)
	}
	if !strings.Contains(last.Content, `"stock":3`) {
		t.Fatalf("tool output not forwarded: %q", last.Content)
	}
	prev := second[len(second)-2]
	if prev.Role != "assistant" || len(prev.ToolCalls) != 1 {
		t.Fatalf("expected assistant turn with tool calls, got %+v", prev)
	}
}

func TestRespondUnknownToolIsFedBackNotFatal(t *testing.T) {
	chatter := &scriptedChatter{script: []llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "launch_rocket", Arguments: map[string]any{}}}},
		{Content: "sorry, I can't do that"},
	}}
	a := newTestAgent(chatter, testRegistry(t), nil)

	reply, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "launch")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	second := chatter.calls[1]
	last := second[len(second)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, `"success":false`) {
		t.Fatalf("unknown tool must surface as a failure result: %+v", last)
	}
	if reply.Text != "sorry, I can't do that" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
}

func TestRespondIterationCapProducesFallbackText(t *testing.T) {
	loop := llm.Completion{ToolCalls: []llm.ToolCall{{ID: "c", Name: "check_stock", Arguments: map[string]any{}}}}
	chatter := &scriptedChatter{script: []llm.Completion{loop, loop, loop, loop}}
	a := newTestAgent(chatter, testRegistry(t), nil)

	reply, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "loop forever")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Iterations != 3 {
		t.Fatalf("expected cap of 3 iterations, got %d", reply.Iterations)
	}
	if reply.Text != exhaustedReply {
		t.Fatalf("expected fallback text, got %q", reply.Text)
	}
	if len(reply.Actions) != 3 {
		t.Fatalf("expected 3 recorded actions, got %d", len(reply.Actions))
	}
}

func TestRespondIterationCapKeepsLastAssistantText(t *testing.T) {
	call := []llm.ToolCall{{ID: "c", Name: "check_stock", Arguments: map[string]any{}}}
	chatter := &scriptedChatter{script: []llm.Completion{
		{Content: "Checking the shelf for you.", ToolCalls: call},
		{Content: "Let me check the stock for you.", ToolCalls: call},
		{ToolCalls: call},
	}}
	a := newTestAgent(chatter, testRegistry(t), nil)

	reply, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "loop forever")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Iterations != 3 {
		t.Fatalf("expected cap of 3 iterations, got %d", reply.Iterations)
	}
	if reply.Text != "Let me check the stock for you." {
		t.Fatalf("expected last assistant text, got %q", reply.Text)
	}
}

func TestRespondProviderErrorPropagates(t *testing.T) {
	chatter := &scriptedChatter{err: errors.New("timeout")}
	a := newTestAgent(chatter, testRegistry(t), nil)

	if _, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "hi"); err == nil {
		t.Fatalf("expected error from provider failure")
	}
}

func TestRespondIncludesHistoryAndSystemPrompt(t *testing.T) {
	chatter := &scriptedChatter{script: []llm.Completion{{Content: "ok"}}}
	history := staticHistory{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	a := newTestAgent(chatter, testRegistry(t), history)

	if _, err := a.Respond(context.Background(), capability.Actor{}, "sess-1", "new question"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	msgs := chatter.calls[0]
	if msgs[0].Role != "system" {
		t.Fatalf("first message must be the system prompt")
	}
	if msgs[1].Content != "earlier question" || msgs[2].Content != "earlier answer" {
		t.Fatalf("history not replayed in order: %+v", msgs[1:3])
	}
	if msgs[len(msgs)-1].Content != "new question" {
		t.Fatalf("new message must come last")
	}
}
