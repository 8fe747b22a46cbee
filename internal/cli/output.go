// Package cli renders retrieval results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/pkg/utils"
)

// OutputFormat is the format for retrieval result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputContext is the labeled source block handed to answer generation.
	OutputContext OutputFormat = "context"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputContext:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or context)", s)
	}
}

const previewBytes = 300

// Colors are disabled automatically when stdout is not a terminal.
var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	crossRefColor = color.New(color.FgMagenta, color.Bold)
	warnColor     = color.New(color.FgYellow)
)

// contextSeparator separates passages in the context block.
const contextSeparator = "\n\n---\n\n"

// WriteSearchResults writes rs to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, rs *models.ResultSet, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models.RetrievalResponse{Results: rs})
	case OutputContext:
		_, err := io.WriteString(w, FormatContext(rs.Results)+"\n")
		return err
	default:
		return writeText(w, rs)
	}
}

func writeText(w io.Writer, rs *models.ResultSet) error {
	if rs.Empty() {
		_, err := fmt.Fprintln(w, "No relevant documents found for this query.")
		return err
	}
	primary, refs := rs.Primary(), rs.CrossReferences()
	fmt.Fprintf(w, "\nFound %d results (%d cross references) in %dms | Confidence: %.3f\n",
		len(rs.Results), len(refs), rs.QueryTime, rs.Confidence)
	if rs.CrossRefFailures > 0 {
		warnColor.Fprintf(w, "Warning: %d cross reference lookups failed\n", rs.CrossRefFailures)
	}
	fmt.Fprintln(w)
	for i, c := range primary {
		writeOne(w, i+1, c)
	}
	for _, c := range refs {
		writeOne(w, 0, c)
	}
	return nil
}

func writeOne(w io.Writer, rank int, c *models.ScoredCandidate) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	if c.Metadata.IsCrossRef {
		crossRefColor.Fprintln(w, Header(c))
	} else {
		headerColor.Fprintln(w, Header(c))
	}
	if rank > 0 {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Semantic: %.4f, Boost: %.2f) | Similarity: %.3f\n",
			rank, c.Score, c.SemanticScore, c.Boost, c.Metadata.SimilarityScore)
	} else {
		fmt.Fprintf(w, "Score: %.4f | Similarity: %.3f\n", c.Score, c.Metadata.SimilarityScore)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(c.Text, previewBytes))
}

// Header labels a candidate for grounding context, e.g.
// "[Source: 346.pdf | Type: statute | Section: 346.63]".
func Header(c *models.ScoredCandidate) string {
	section := c.Metadata.SectionNumber
	if section == "" {
		section = "N/A"
	}
	return fmt.Sprintf("[%s: %s | Type: %s | Section: %s]",
		c.Label(), c.Metadata.SourceFile, c.Metadata.DocType, section)
}

// FormatContext joins each candidate's header and full text into one block.
func FormatContext(results []*models.ScoredCandidate) string {
	parts := make([]string, len(results))
	for i, c := range results {
		parts[i] = Header(c) + "\n" + c.Text
	}
	return strings.Join(parts, contextSeparator)
}
