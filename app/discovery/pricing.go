package discovery

// ModelPrice is the USD price per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

type Pricing map[string]ModelPrice

func DefaultPricing() Pricing {
	return Pricing{
		"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
		"gemini-2.5-flash-lite": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
	}
}

// Cost prices a call, trying each model name in turn. Unknown models cost 0.
func (p Pricing) Cost(promptTokens, completionTokens int, models ...string) (float64, bool) {
	for _, model := range models {
		price, ok := p[model]
		if !ok {
			continue
		}
		cost := float64(promptTokens)*price.InputPerMillion/1e6 +
			float64(completionTokens)*price.OutputPerMillion/1e6
		return cost, true
	}
	return 0, false
}
