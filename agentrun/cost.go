package agentrun

import "github.com/mhollis/agentward/llm"

// PriceTable maps a model to the dollar cost of a completion. The second
// return is false when the model's pricing is unknown.
type PriceTable interface {
	Cost(model string, promptTokens, completionTokens int) (float64, bool)
}

// CatalogPricing is the default PriceTable, backed by the llm model catalog.
type CatalogPricing struct{}

func (CatalogPricing) Cost(model string, promptTokens, completionTokens int) (float64, bool) {
	return llm.CostUSD(model, promptTokens, completionTokens)
}

// EstimateCost converts measured usage into dollars via the table. Unknown
// models estimate to zero: with no pricing there is nothing to enforce, and a
// run is never failed on a guess.
func EstimateCost(table PriceTable, model string, promptTokens, completionTokens int) float64 {
	if table == nil {
		table = CatalogPricing{}
	}
	cost, ok := table.Cost(model, promptTokens, completionTokens)
	if !ok {
		return 0
	}
	return cost
}
