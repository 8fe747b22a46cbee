package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/hyperjump/wislaw/internal/models"
)

func sampleResults() *models.ResultSet {
	return &models.ResultSet{
		Query:      "what is 346.63",
		QueryTime:  12,
		Confidence: 0.95,
		TopScore:   0.95,
		Results: []*models.ScoredCandidate{
			{Score: 0.95, SemanticScore: 0.8, Boost: 0.15, Passage: models.Passage{
				ID: "a", Text: "No person may drive while intoxicated. See s. 346.65.",
				Metadata: models.Metadata{SourceFile: "346.pdf", DocType: models.DocTypeStatute,
					SectionNumber: "346.63", SimilarityScore: 0.95}}},
			{Score: 0.7, SemanticScore: 0.7, Passage: models.Passage{
				ID: "b", Text: "Officers shall document field sobriety tests.",
				Metadata: models.Metadata{SourceFile: "owi_policy.pdf", DocType: models.DocTypeDepartmentPolicy,
					SimilarityScore: 0.7}}},
			{Score: 0.5, Passage: models.Passage{
				ID: "c", Text: "Penalties.",
				Metadata: models.Metadata{SourceFile: "346.pdf", DocType: models.DocTypeStatute,
					SectionNumber: "346.65", IsCrossRef: true, SimilarityScore: 0.5}}},
		},
	}
}

func TestHeader(t *testing.T) {
	rs := sampleResults()
	tests := []struct {
		c    *models.ScoredCandidate
		want string
	}{
		{rs.Results[0], "[Source: 346.pdf | Type: statute | Section: 346.63]"},
		{rs.Results[1], "[Source: owi_policy.pdf | Type: department_policy | Section: N/A]"},
		{rs.Results[2], "[Cross-Reference: 346.pdf | Type: statute | Section: 346.65]"},
	}
	for _, tt := range tests {
		if got := Header(tt.c); got != tt.want {
			t.Errorf("Header(%s) = %q, want %q", tt.c.ID, got, tt.want)
		}
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResults(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.RetrievalResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	rs := decoded.Results
	if rs == nil || rs.Query != "what is 346.63" || len(rs.Results) != 3 {
		t.Fatalf("decoded = %+v", rs)
	}
	if !rs.Results[2].Metadata.IsCrossRef || rs.Results[0].Metadata.SimilarityScore != 0.95 {
		t.Errorf("metadata flags lost: %+v", rs.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResults(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 3 results (1 cross references) in 12ms | Confidence: 0.950",
		"[Source: 346.pdf | Type: statute | Section: 346.63]",
		"Rank: 2 | Score: 0.7000",
		"[Cross-Reference: 346.pdf | Type: statute | Section: 346.65]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.ResultSet{}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No relevant documents found") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteSearchResults_Context(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResults(), OutputContext); err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(strings.TrimSuffix(buf.String(), "\n"), contextSeparator)
	if len(parts) != 3 {
		t.Fatalf("expected 3 context blocks, got %d", len(parts))
	}
	if parts[0] != "[Source: 346.pdf | Type: statute | Section: 346.63]\nNo person may drive while intoxicated. See s. 346.65." {
		t.Errorf("first block = %q", parts[0])
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"TEXT", OutputText, false},
		{"json", OutputJSON, false},
		{"context", OutputContext, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
