package models

// ScoredCandidate is a passage with its blended retrieval score.
// Score = SemanticScore + Boost for ranked hits; cross references carry a fixed Score.
type ScoredCandidate struct {
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	Boost         float64 `json:"keyword_boost"`
	Passage
}

// Label is the source label used when the candidate is rendered as grounding context.
func (c *ScoredCandidate) Label() string {
	if c.Metadata.IsCrossRef {
		return "Cross-Reference"
	}
	return "Source"
}

// ResultSet is the output of one retrieval: ranked primary hits followed by
// supplementary cross references, plus a confidence summary.
type ResultSet struct {
	Results []*ScoredCandidate `json:"results"`
	// Confidence is the top primary score clamped into [0,1].
	Confidence float64 `json:"confidence"`
	// TopScore is the raw blended score of the top primary hit (may exceed 1).
	TopScore float64 `json:"top_score"`
	// Query is the normalized query text that was searched.
	Query            string `json:"query"`
	CrossRefFailures int    `json:"cross_ref_failures,omitempty"`
	QueryTime        int64  `json:"query_time_ms"`
}

// Empty reports whether the result set has no entries.
func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Results) == 0
}

// Primary returns the ranked (non cross-reference) entries.
func (r *ResultSet) Primary() []*ScoredCandidate {
	out := make([]*ScoredCandidate, 0, len(r.Results))
	for _, c := range r.Results {
		if !c.Metadata.IsCrossRef {
			out = append(out, c)
		}
	}
	return out
}

// CrossReferences returns the supplementary cross-reference entries.
func (r *ResultSet) CrossReferences() []*ScoredCandidate {
	var out []*ScoredCandidate
	for _, c := range r.Results {
		if c.Metadata.IsCrossRef {
			out = append(out, c)
		}
	}
	return out
}
