package search

import (
	"errors"
	"fmt"

	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/models"
)

// ErrInvalidRequest wraps request validation failures other than a bad filter.
var ErrInvalidRequest = errors.New("invalid retrieval request")

// ProcessRequest validates req, applies the configured result-count defaults
// and returns the metadata filter the request asks for.
func ProcessRequest(req *models.RetrievalRequest, cfg *config.SearchConfig) (index.Filter, error) {
	filter := index.DocTypeFilter(req.DocTypeFilter)
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if req.NResults <= 0 {
		req.NResults = cfg.DefaultResults
	}
	if err := req.Validate(cfg.MaxResults); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return filter, nil
}
