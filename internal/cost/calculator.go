package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Completion map[string]ModelRate `yaml:"completion" mapstructure:"completion"`
	XAPI       XAPIRate             `yaml:"xapi" mapstructure:"xapi"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// XAPIRate holds flat per-request X API pricing.
type XAPIRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost for one LLM completion call.
func (c *Calculator) Completion(model string, input, output int) float64 {
	rate, ok := c.rates.Completion[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// XAPIRequest returns the flat cost per X API request.
func (c *Calculator) XAPIRequest() float64 {
	return c.rates.XAPI.PerRequest
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Completion: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
			"grok-3-mini":               {Input: 0.30, Output: 0.50},
		},
		XAPI: XAPIRate{PerRequest: 0.005},
	}
}
