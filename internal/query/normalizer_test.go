package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"abbreviation appended once", "OWI 3rd", "OWI 3rd operating while intoxicated"},
		{"spelling corrected", "vehicel search", "vehicle search"},
		{"correction is case-insensitive", "MIRNADA Warnings", "miranda Warnings miranda rights warnings custodial interrogation"},
		{"whitespace collapsed", "  vehicel   search ", "vehicle search"},
		{"multiple abbreviations in table order", "OWI with BAC over limit", "OWI with BAC over limit operating while intoxicated blood alcohol concentration"},
		{"substring containment", "conduit", "conduit driving under the influence"},
		{"phrase abbreviation", "4th amendment vehicle search", "4th amendment vehicle search fourth amendment unreasonable search seizure"},
		{"expansion already present", "OWI operating while intoxicated", "OWI operating while intoxicated"},
		{"no match", "criminal penalty", "criminal penalty"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.query); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestNormalize_idempotent(t *testing.T) {
	queries := []string{
		"OWI 3rd",
		"dui checkpoint",
		"miranda juvenile",
		"terry stop frisk",
		"4th amendment vehicle search",
		"vehicel search during trafic stop",
	}
	for _, q := range queries {
		once := Normalize(q)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", q, once, twice)
		}
	}
}

func TestNormalize_correctsBeforeExpanding(t *testing.T) {
	// "mirada" is only recognized as "miranda" after correction.
	got := Normalize("mirada rights")
	if !strings.HasPrefix(got, "miranda rights") {
		t.Fatalf("expected corrected prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "miranda rights warnings custodial interrogation") {
		t.Errorf("expected miranda expansion, got %q", got)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		query         string
		wantCitations []string
		wantKeywords  []string
	}{
		{"what is 940.01 and 346.63 penalty", []string{"940.01", "346.63"}, []string{"penalty"}},
		{"section 9401.011 or 940.0123", nil, []string{"section"}},
		{"DURING a Vehicle's search search", nil, []string{"vehicle", "search", "search"}},
		{"s. 346.63(1)(a)", []string{"346.63"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Extract(tt.query)
			if len(got.Citations) != len(tt.wantCitations) || (len(tt.wantCitations) > 0 && !reflect.DeepEqual(got.Citations, tt.wantCitations)) {
				t.Errorf("Citations = %v, want %v", got.Citations, tt.wantCitations)
			}
			if len(got.Keywords) != len(tt.wantKeywords) || (len(tt.wantKeywords) > 0 && !reflect.DeepEqual(got.Keywords, tt.wantKeywords)) {
				t.Errorf("Keywords = %v, want %v", got.Keywords, tt.wantKeywords)
			}
		})
	}
}
