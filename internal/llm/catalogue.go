package llm

import "sort"

// Catalogue is the registered set of generative models a gateway may route
// to.
type Catalogue struct {
	models []Model
}

// NewCatalogue builds a Catalogue from models.
func NewCatalogue(models []Model) *Catalogue {
	return &Catalogue{models: models}
}

// qualifying filters the catalogue to models satisfying c.
func (cat *Catalogue) qualifying(c SelectionConstraints) []Model {
	var out []Model
	for _, m := range cat.models {
		if !m.SupportsPrivacy(c.Privacy) {
			continue
		}
		if m.ContextWindowTokens < c.MinInputTokens {
			continue
		}
		if c.RequireStreaming && !m.SupportsStreaming {
			continue
		}
		if c.RequireStructured && !m.SupportsStructured {
			continue
		}
		out = append(out, m)
	}
	return out
}

// sortByStrategy orders models per strategy, in place.
func sortByStrategy(models []Model, strategy Strategy) {
	switch strategy {
	case StrategyLowestCost:
		sort.SliceStable(models, func(i, j int) bool {
			return models[i].CostPer1KInput < models[j].CostPer1KInput
		})
	case StrategyLowestLatency:
		sort.SliceStable(models, func(i, j int) bool {
			return models[i].P50LatencyMs < models[j].P50LatencyMs
		})
	default: // StrategyHighestQuality and unrecognized strategies
		sort.SliceStable(models, func(i, j int) bool {
			return models[i].QualityScore > models[j].QualityScore
		})
	}
}

// Select picks the primary model for c and strategy, then builds the
// fallback chain: primary first, then every other qualifying model sorted
// by quality descending. Returns ConfigurationError if nothing qualifies.
func (cat *Catalogue) Select(c SelectionConstraints, strategy Strategy) ([]Model, error) {
	qualifying := cat.qualifying(c)
	if len(qualifying) == 0 {
		return nil, &ConfigurationError{Constraints: c}
	}

	primary := make([]Model, len(qualifying))
	copy(primary, qualifying)
	sortByStrategy(primary, strategy)

	chain := []Model{primary[0]}

	rest := make([]Model, 0, len(qualifying)-1)
	for _, m := range qualifying {
		if m.ID != chain[0].ID {
			rest = append(rest, m)
		}
	}
	sortByStrategy(rest, StrategyHighestQuality)
	chain = append(chain, rest...)

	return chain, nil
}
