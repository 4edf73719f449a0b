package intern

import "quorum/internal/llm"

// rate is the price per million tokens, split by direction.
type rate struct {
	input  float64
	output float64
}

// modelRates prices the models the default tiers route to. Unknown models
// fall back to defaultRate, priced conservatively high so a misrouted model
// overestimates rather than underestimates spend.
var modelRates = map[string]rate{
	"meta/llama-3.1-70b-instruct":      {input: 0.60, output: 0.60},
	"meta/llama-3.1-405b-instruct":     {input: 3.50, output: 3.50},
	"microsoft/phi-3-mini-4k-instruct": {input: 0.10, output: 0.10},
	"nvidia/nemotron-3-nano-30b-a3b":   {input: 0.20, output: 0.40},
}

var defaultRate = rate{input: 5.00, output: 15.00}

// CostFor computes the dollar cost of a generation from its token usage.
func CostFor(model string, usage llm.Usage) float64 {
	r, ok := modelRates[model]
	if !ok {
		r = defaultRate
	}
	return r.input*float64(usage.PromptTokens)/1e6 + r.output*float64(usage.CompletionTokens)/1e6
}
