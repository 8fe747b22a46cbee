package ranking

import "fmt"

// RankingConfig holds the weights of the hybrid re-scoring step.
type RankingConfig struct {
	// Added once per query citation found verbatim in the passage text.
	CitationBoost float64 `yaml:"citation_boost"` // default: 0.15
	// Added once per query keyword found anywhere in the passage text (case-insensitive).
	KeywordBoost float64 `yaml:"keyword_boost"` // default: 0.05
	// Upper bound of the total boost for one passage.
	MaxBoost float64 `yaml:"max_boost"` // default: 0.4
}

// MaxBoostLimit is the largest total boost a passage may receive.
const MaxBoostLimit = 0.4

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		CitationBoost: 0.15,
		KeywordBoost:  0.05,
		MaxBoost:      0.4,
	}
}

// ApplyDefaults replaces an unset (all zero) config with the defaults.
// A config with any weight set is kept as is, so a single weight can be 0.
func (c *RankingConfig) ApplyDefaults() {
	if *c == (RankingConfig{}) {
		*c = *DefaultRankingConfig()
	}
}

// Validate rejects negative weights and a max_boost above MaxBoostLimit.
func (c *RankingConfig) Validate() error {
	if c.CitationBoost < 0 {
		return fmt.Errorf("citation_boost must be >= 0, got %v", c.CitationBoost)
	}
	if c.KeywordBoost < 0 {
		return fmt.Errorf("keyword_boost must be >= 0, got %v", c.KeywordBoost)
	}
	if c.MaxBoost < 0 || c.MaxBoost > MaxBoostLimit {
		return fmt.Errorf("max_boost must be in [0, %v], got %v", MaxBoostLimit, c.MaxBoost)
	}
	return nil
}
