package llm

import "strings"

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

// prices is matched by longest model-name prefix.
var prices = map[string]price{
	"gpt-4o-mini":       {input: 0.15, output: 0.60},
	"gpt-4o":            {input: 2.50, output: 10.00},
	"gpt-4.1-mini":      {input: 0.40, output: 1.60},
	"gpt-4.1":           {input: 2.00, output: 8.00},
	"gpt-3.5-turbo":     {input: 0.50, output: 1.50},
	"claude-3-5-haiku":  {input: 0.80, output: 4.00},
	"claude-3-5-sonnet": {input: 3.00, output: 15.00},
	"claude-3-haiku":    {input: 0.25, output: 1.25},
	"claude-3-opus":     {input: 15.00, output: 75.00},
	"claude-sonnet-4":   {input: 3.00, output: 15.00},
	"claude-opus-4":     {input: 15.00, output: 75.00},
}

// EstimateCost returns the USD cost of a call, or 0 for unknown and local models.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	var (
		best    price
		bestLen int
	)
	for prefix, p := range prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	if bestLen == 0 {
		return 0
	}
	return (float64(inputTokens)*best.input + float64(outputTokens)*best.output) / 1_000_000
}
