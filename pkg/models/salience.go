package models

// Salience dimension names as they appear in vectors, boosts, and persisted
// JSONB snapshots. Reserved dimensions are carried on every vector even when
// no scorer populates them yet.
const (
	DimNovelty       = "novelty"
	DimGoalRelevance = "goal_relevance"
	DimOpportunity   = "opportunity"
	DimActionability = "actionability"
	DimSocial        = "social"
	DimThreat        = "threat"
	DimSalience      = "salience"
	DimHabituation   = "habituation"
)

// SalienceVector holds per-dimension salience scores for one event.
// All scores are in [0,1]. Extra carries extension dimensions without a
// schema change; Error is set when scoring ran degraded (fallback vector).
type SalienceVector struct {
	Novelty       float64 `json:"novelty"`
	GoalRelevance float64 `json:"goal_relevance"`
	Opportunity   float64 `json:"opportunity"`
	Actionability float64 `json:"actionability"`
	Social        float64 `json:"social"`

	// Reserved dimensions
	Threat      float64 `json:"threat"`
	Salience    float64 `json:"salience"`
	Habituation float64 `json:"habituation"`

	Extra map[string]float64 `json:"extra,omitempty"`

	ModelID string `json:"model_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Aggregate returns the scalar priority of the vector: the maximum across
// all trigger dimensions, with threat checked first so a threatened event
// never ranks below its other dimensions. Habituation is excluded: it is a
// modifier that damps novelty, not a trigger.
func (v *SalienceVector) Aggregate() float64 {
	max := v.Threat
	for _, d := range []float64{
		v.Novelty, v.GoalRelevance, v.Opportunity,
		v.Actionability, v.Social, v.Salience,
	} {
		if d > max {
			max = d
		}
	}
	for _, d := range v.Extra {
		if d > max {
			max = d
		}
	}
	return max
}

// ApplyBoost max-merges per-dimension boosts (from a matched heuristic's
// action) into the vector. Known dimension names map onto struct fields;
// anything else lands in Extra. A boost never lowers an existing score.
func (v *SalienceVector) ApplyBoost(boost map[string]float64) {
	for name, val := range boost {
		switch name {
		case DimNovelty:
			v.Novelty = maxf(v.Novelty, val)
		case DimGoalRelevance:
			v.GoalRelevance = maxf(v.GoalRelevance, val)
		case DimOpportunity:
			v.Opportunity = maxf(v.Opportunity, val)
		case DimActionability:
			v.Actionability = maxf(v.Actionability, val)
		case DimSocial:
			v.Social = maxf(v.Social, val)
		case DimThreat:
			v.Threat = maxf(v.Threat, val)
		case DimSalience:
			v.Salience = maxf(v.Salience, val)
		case DimHabituation:
			v.Habituation = maxf(v.Habituation, val)
		default:
			if v.Extra == nil {
				v.Extra = make(map[string]float64)
			}
			v.Extra[name] = maxf(v.Extra[name], val)
		}
	}
}

// AsMap flattens the vector into dimension→score pairs for JSONB persistence.
func (v *SalienceVector) AsMap() map[string]float64 {
	m := map[string]float64{
		DimNovelty:       v.Novelty,
		DimGoalRelevance: v.GoalRelevance,
		DimOpportunity:   v.Opportunity,
		DimActionability: v.Actionability,
		DimSocial:        v.Social,
		DimThreat:        v.Threat,
		DimSalience:      v.Salience,
		DimHabituation:   v.Habituation,
	}
	for name, val := range v.Extra {
		m[name] = val
	}
	return m
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
