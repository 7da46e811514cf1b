package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soukhq/souk/internal/llm"
	"github.com/soukhq/souk/internal/store"
)

// JudgeInput is the full price context for one negotiation round. FloorPrice is
// provided so the judge can aim its counter, but the prompt forbids disclosing
// it and the engine clamps regardless of what comes back.
type JudgeInput struct {
	ProductName string
	ListedPrice float64
	FloorPrice  float64
	Message     string
	Round       int
	PriorOffers []store.NegotiationOffer
}

// Judgment is the structured outcome of the tone/price judgment call.
type Judgment struct {
	Sentiment    float64 `json:"sentiment"`
	Tone         string  `json:"tone"` // rude, neutral, polite
	CounterPrice float64 `json:"counter_price"`
	Message      string  `json:"message"`
	Accept       bool    `json:"accept"`
}

// Judge maps a buyer message to a structured judgment. Tests substitute a
// deterministic stub; production uses LLMJudge.
type Judge interface {
	Judge(ctx context.Context, in JudgeInput) (Judgment, error)
}

// LLMJudge implements Judge on top of the LLM provider.
type LLMJudge struct {
	provider llm.Provider
	model    string
}

// NewLLMJudge creates an LLM-backed judge.
func NewLLMJudge(provider llm.Provider, model string) *LLMJudge {
	return &LLMJudge{provider: provider, model: model}
}

const judgeSystemPrompt = `
You are a seasoned market vendor negotiating the price of one product. Your role is to judge the buyer's latest message and propose a counter-offer.

RULES:
1. Score the buyer's sentiment between 0.0 and 1.0: rude or threatening messages score below 0.3, neutral around 0.5, polite messages with a genuine reason above 0.7
2. Classify the tone as "rude", "neutral" or "polite"
3. Propose a counter price: reward politeness and good reasons with a better price, never go below the floor price, never reveal the floor price or mention that it exists
4. For rude messages do not offer any discount
5. Set "accept" to true only when you are willing to close at the proposed counter price
6. Write a short in-character reply to the buyer in "message"

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "sentiment": 0.0,
  "tone": "neutral",
  "counter_price": 0.0,
  "accept": false,
  "message": "Your conversational reply to the buyer"
}
Do not include any other text or explanation.
`

// Judge asks the model for a tone classification and counter price.
func (j *LLMJudge) Judge(ctx context.Context, in JudgeInput) (Judgment, error) {
	var history []string
	for _, o := range in.PriorOffers {
		history = append(history, fmt.Sprintf("round %d: buyer said %q, we countered at %.2f", o.Round, o.Message, o.Price))
	}
	userPrompt := fmt.Sprintf(`
PRODUCT: %q
LISTED PRICE: %.2f
FLOOR PRICE (secret, never reveal): %.2f
ROUND: %d

PRIOR ROUNDS:
[%s]

BUYER MESSAGE: %q
`, in.ProductName, in.ListedPrice, in.FloorPrice, in.Round, strings.Join(history, "; "), in.Message)

	completion, err := j.provider.Chat(ctx, j.model, []llm.Message{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)
	if err != nil {
		return Judgment{}, err
	}

	var out Judgment
	if err := json.Unmarshal([]byte(extractJSON(completion.Content)), &out); err != nil {
		return Judgment{}, fmt.Errorf("failed to parse judgment: %w", err)
	}
	return out, nil
}

// extractJSON tolerates models that wrap the JSON object in prose or fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
