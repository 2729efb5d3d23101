// Package sentiment classifies memory content into a sentiment label with a
// confidence score, using a text-completion provider with a constrained JSON
// output prompt.
//
// Classification is enrichment, not user data: every failure path (provider
// error, malformed JSON, missing fields) degrades to the neutral fallback
// instead of surfacing an error to the caller.
package sentiment

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/soulnet-ai/soulnet-go/pkg/llm"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Analysis is the result of classifying one text.
type Analysis struct {
	// Sentiment is one of "positive", "negative", "neutral".
	Sentiment string `json:"sentiment"`

	// Confidence is the classifier confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// Fallback returned whenever the provider response is unusable.
const (
	fallbackSentiment  = storage.SentimentNeutral
	fallbackConfidence = 0.5
)

const systemPrompt = `Analise o sentimento do texto fornecido e retorne APENAS um JSON válido no formato:
{"sentiment": "positive|negative|neutral", "confidence": 0.95}

Onde:
- sentiment: "positive" para sentimentos positivos, "negative" para negativos, "neutral" para neutros
- confidence: número entre 0.0 e 1.0 indicando a confiança da análise

Não inclua explicações, apenas o JSON.`

// Classifier turns free text into an Analysis.
type Classifier struct {
	llm    llm.Provider
	logger *slog.Logger
}

// NewClassifier creates a classifier on top of the given completion provider.
func NewClassifier(provider llm.Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		llm:    provider,
		logger: logger,
	}
}

// Classify analyzes the sentiment of content. It never fails: any provider or
// parse problem yields the neutral/0.5 fallback, logged at WARN so operator
// visibility survives the silent degradation.
func (c *Classifier) Classify(ctx context.Context, content string) Analysis {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: content},
	}

	response, err := c.llm.GenerateWithMessages(ctx, messages,
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(50),
	)
	if err != nil {
		c.logger.Warn("sentiment analysis degraded to neutral fallback", "error", err)
		return Analysis{Sentiment: fallbackSentiment, Confidence: fallbackConfidence}
	}

	analysis, err := parseResponse(response)
	if err != nil {
		c.logger.Warn("sentiment response unparsable, using neutral fallback", "error", err, "response", response)
		return Analysis{Sentiment: fallbackSentiment, Confidence: fallbackConfidence}
	}
	return analysis
}

func parseResponse(response string) (Analysis, error) {
	raw := stripCodeFences(strings.TrimSpace(response))

	// Confidence is a pointer so that an absent field falls back to 0.5
	// instead of reading as a literal zero.
	var parsed struct {
		Sentiment  string   `json:"sentiment"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Analysis{}, err
	}

	sentiment := parsed.Sentiment
	switch sentiment {
	case storage.SentimentPositive, storage.SentimentNegative, storage.SentimentNeutral:
	default:
		sentiment = fallbackSentiment
	}

	confidence := fallbackConfidence
	if parsed.Confidence != nil {
		confidence = clamp(*parsed.Confidence, 0.0, 1.0)
	}

	return Analysis{Sentiment: sentiment, Confidence: confidence}, nil
}

// stripCodeFences removes a surrounding markdown code block, which some
// models add despite the prompt.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
