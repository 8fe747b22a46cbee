package query

import (
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`\b\d{3}\.\d{2,3}\b`)
	keywordPattern  = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)
)

// stopwords are excluded from keyword boosting. Only words of four or more
// letters can reach the filter, so the shorter entries never match.
var stopwords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "that": {}, "this": {},
	"with": {}, "from": {}, "have": {}, "does": {}, "are": {}, "the": {},
	"for": {}, "and": {}, "can": {}, "during": {},
}

// Terms holds the literal signals extracted from a normalized query.
type Terms struct {
	// Citations are statute-style numbers such as "940.01", in query order.
	Citations []string
	// Keywords are lowercased alphabetic words of four or more letters, minus stopwords.
	Keywords []string
}

// Extract returns the citations and keywords of q. Duplicates are preserved.
func Extract(q string) Terms {
	return Terms{
		Citations: ExtractCitations(q),
		Keywords:  ExtractKeywords(q),
	}
}

// ExtractCitations returns every "ddd.dd" / "ddd.ddd" number in q.
func ExtractCitations(q string) []string {
	return citationPattern.FindAllString(q, -1)
}

// ExtractKeywords returns lowercased words of four or more ASCII letters that are not stopwords.
func ExtractKeywords(q string) []string {
	matches := keywordPattern.FindAllString(q, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		w := strings.ToLower(m)
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
