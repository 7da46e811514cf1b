package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/soukhq/souk/internal/capability"
	"github.com/soukhq/souk/internal/llm"
	"github.com/soukhq/souk/internal/store"
	"github.com/soukhq/souk/internal/telemetry"
)

const systemPrompt = `You are Souk, the shopping assistant of an online marketplace.
You help shoppers find products, check availability, manage their cart and negotiate prices.

Rules:
- Use the provided tools for anything that touches the catalog, cart or prices. Never invent products, prices or stock numbers.
- When a shopper wants to haggle, relay their own words through the negotiation tool and pass its answer back faithfully.
- Never reveal internal price floors or margins.
- If a tool reports a failure, explain it to the shopper in plain language and suggest a next step.
- Be concise and warm. Answer in the shopper's language.`

// exhaustedReply is returned when the loop hits its iteration cap without a final answer.
const exhaustedReply = "I'm still working on that. Could you rephrase or narrow down your request?"

// Chatter is the slice of the model provider the agent needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef) (llm.Completion, error)
}

// History loads sanitized prior turns for a session.
type History interface {
	History(ctx context.Context, sessionID string) []llm.Message
}

// Reply is one finished chat turn.
type Reply struct {
	Text       string
	Actions    []store.RecordedAction
	Iterations int
}

// Agent runs the bounded tool-calling loop over the capability registry.
type Agent struct {
	chatter  Chatter
	registry *capability.Registry
	history  History
	logger   *log.Logger

	model         string
	maxIterations int
}

func New(chatter Chatter, registry *capability.Registry, history History, model string, maxIterations int, logger *log.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[agent] ", log.LstdFlags)
	}
	return &Agent{
		chatter:       chatter,
		registry:      registry,
		history:       history,
		logger:        logger,
		model:         model,
		maxIterations: maxIterations,
	}
}

// Respond runs one chat turn: prior history plus the new message, tool calls
// executed one at a time, until the model answers in plain text or the
// iteration cap is reached.
func (a *Agent) Respond(ctx context.Context, actor capability.Actor, sessionID, userMessage string) (Reply, error) {
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	if a.history != nil {
		messages = append(messages, a.history.History(ctx, sessionID)...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	tools := a.registry.Defs()
	var actions []store.RecordedAction
	var lastText string

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		completion, err := a.chatter.Chat(ctx, a.model, messages, tools)
		if err != nil {
			telemetry.ChatTurns.WithLabelValues("error").Inc()
			return Reply{}, fmt.Errorf("chat completion: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			telemetry.ChatTurns.WithLabelValues("ok").Inc()
			telemetry.LoopIterations.Observe(float64(iteration))
			return Reply{Text: completion.Content, Actions: actions, Iterations: iteration}, nil
		}

		if completion.Content != "" {
			lastText = completion.Content
		}
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			result := a.registry.Execute(ctx, actor, call.Name, call.Arguments)
			outcome := "ok"
			if ok, _ := result["success"].(bool); !ok {
				outcome = "failure"
			}
			telemetry.CapabilityInvocations.WithLabelValues(call.Name, outcome).Inc()
			a.logger.Printf("session=%s capability=%s outcome=%s", sessionID, call.Name, outcome)

			actions = append(actions, store.RecordedAction{Name: call.Name, Args: call.Arguments})
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    encodeResult(result),
			})
		}
	}

	telemetry.ChatTurns.WithLabelValues("exhausted").Inc()
	telemetry.LoopIterations.Observe(float64(a.maxIterations))
	text := lastText
	if text == "" {
		text = exhaustedReply
	}
	return Reply{Text: text, Actions: actions, Iterations: a.maxIterations}, nil
}

func encodeResult(result map[string]any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"message":"result could not be encoded"}`
	}
	return string(raw)
}
