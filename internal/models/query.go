package models

import (
	"fmt"
	"strings"
)

// DefaultResults is the number of primary results when a request does not set one.
const DefaultResults = 5

// RetrievalRequest is a retrieval request at the serving boundary.
type RetrievalRequest struct {
	Question      string `json:"question"`
	DocTypeFilter string `json:"doc_type_filter,omitempty"`
	NResults      int    `json:"n_results,omitempty"`
}

// Validate trims the question and applies result-count defaults.
// Returns an error if the question is blank or the doc type filter is not a known type.
func (r *RetrievalRequest) Validate(maxResults int) error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.DocTypeFilter != "" && !DocType(r.DocTypeFilter).Valid() {
		return fmt.Errorf("unknown doc_type_filter %q", r.DocTypeFilter)
	}
	if r.NResults <= 0 {
		r.NResults = DefaultResults
	}
	if maxResults > 0 && r.NResults > maxResults {
		r.NResults = maxResults
	}
	return nil
}

// RetrievalResponse wraps a ResultSet for the serving boundary.
type RetrievalResponse struct {
	Results *ResultSet `json:"results"`
}
