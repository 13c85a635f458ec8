package llm

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// costPerToken stores per-1K-token pricing for known models.
// Prices in USD per 1K tokens: [input, output].
var costPerToken = map[string][2]float64{
	// Gemini
	"gemini-2.5-flash":      {0.0003, 0.0025},
	"gemini-2.5-flash-lite": {0.0001, 0.0004},

	// OpenAI
	"gpt-4o":      {0.0025, 0.01},
	"gpt-4o-mini": {0.00015, 0.0006},

	// Anthropic
	"claude-sonnet-4-20250514": {0.003, 0.015},
	"claude-3-5-haiku-latest":  {0.0008, 0.004},
}

// CalculateCost estimates the USD cost of a call. Unknown and local models
// cost nothing. Dated snapshot names ("gpt-4o-mini-2024-07-18") match their
// base entry.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		best := ""
		for name := range costPerToken {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				best = name
			}
		}
		if best == "" {
			return 0
		}
		prices = costPerToken[best]
	}
	inputCost := float64(inputTokens) / 1000.0 * prices[0]
	outputCost := float64(outputTokens) / 1000.0 * prices[1]
	return inputCost + outputCost
}

var (
	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens reported by text providers",
		},
		[]string{"provider", "direction"},
	)

	costTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Estimated spend on text providers",
		},
		[]string{"provider", "model"},
	)
)

func recordUsage(id, model string, inputTokens, outputTokens int) {
	tokensTotal.WithLabelValues(id, "input").Add(float64(inputTokens))
	tokensTotal.WithLabelValues(id, "output").Add(float64(outputTokens))
	if cost := CalculateCost(model, inputTokens, outputTokens); cost > 0 {
		costTotal.WithLabelValues(id, model).Add(cost)
	}
}
