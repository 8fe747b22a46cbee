package query

import (
	"reflect"
	"testing"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		q    string
		want []string
	}{
		{"two digit section", "what is 346.63", []string{"346.63"}},
		{"three digit section", "940.225 sexual assault", []string{"940.225"}},
		{"duplicates kept", "346.63 and 346.63", []string{"346.63", "346.63"}},
		{"too short", "46.63 or 346.6", nil},
		{"none", "implied consent", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.q)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCitations(%q) = %v, want %v", tt.q, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		q    string
		want []string
	}{
		{"stopwords removed", "What does implied consent mean", []string{"implied", "consent", "mean"}},
		{"short words dropped", "OWI 3rd offense", []string{"offense"}},
		{"lowercased and duplicates kept", "Search SEARCH warrant", []string{"search", "search", "warrant"}},
		{"during is a stopword", "during a traffic stop", []string{"traffic", "stop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKeywords(tt.q); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.q, got, tt.want)
			}
		})
	}
}
