package crossref

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/models"
)

// sectionIndex answers GetByMetadata from a fixed table keyed by section number.
type sectionIndex struct {
	sections map[string][]*models.Passage
	failing  map[string]bool
	calls    []string
}

func (s *sectionIndex) Query(ctx context.Context, text string, k int, filter index.Filter) ([]index.Hit, error) {
	return nil, nil
}

func (s *sectionIndex) GetByMetadata(ctx context.Context, filter index.Filter) ([]*models.Passage, error) {
	section := filter[models.MetaSectionNumber]
	s.calls = append(s.calls, section)
	if s.failing[section] {
		return nil, fmt.Errorf("get %s: %w", section, index.ErrIndexUnavailable)
	}
	return s.sections[section], nil
}

func (s *sectionIndex) Count(ctx context.Context) (int, error) {
	return 0, nil
}

func statute(id, section string) *models.Passage {
	return &models.Passage{ID: id, Text: section + " text", Metadata: models.Metadata{
		SourceFile: section[:3] + ".pdf", DocType: models.DocTypeStatute, SectionNumber: section,
	}}
}

func candidate(text string, meta models.Metadata) *models.ScoredCandidate {
	return &models.ScoredCandidate{Score: 0.8, Passage: models.Passage{ID: "c", Text: text, Metadata: meta}}
}

func TestExtractReferences(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{"section symbol", []string{"as provided in § 346.63"}, []string{"346.63"}},
		{"s. form", []string{"see s. 940.01 and s.940.02"}, []string{"940.01", "940.02"}},
		{"section word", []string{"Section 346.65 applies", "under sec. 343.305"}, []string{"346.65", "343.305"}},
		{"case insensitive", []string{"SECTION 346.65", "S. 940.01"}, []string{"346.65", "940.01"}},
		{"first seen order across patterns", []string{"section 346.65 and § 940.01"}, []string{"940.01", "346.65"}},
		{"deduplicated", []string{"§ 346.63", "s. 346.63"}, []string{"346.63"}},
		{"bare number ignored", []string{"346.63 is mentioned"}, nil},
		{"secretary does not match", []string{"secretary 346.63"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractReferences(tt.texts...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractReferences = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_addsUnseenSection(t *testing.T) {
	idx := &sectionIndex{sections: map[string][]*models.Passage{
		"346.63": {statute("s-346-63", "346.63")},
	}}
	top := []*models.ScoredCandidate{
		candidate("... as provided in § 346.63 ...", models.Metadata{SourceFile: "346.pdf", SectionNumber: "346.65"}),
	}
	seen := map[string]struct{}{"346.pdf|346.65": {}}

	res := NewResolver(idx).Resolve(context.Background(), top, seen)
	if len(res.CrossRefs) != 1 {
		t.Fatalf("expected 1 cross reference, got %d", len(res.CrossRefs))
	}
	ref := res.CrossRefs[0]
	if ref.Score != 0.5 || !ref.Metadata.IsCrossRef || ref.Metadata.SectionNumber != "346.63" {
		t.Errorf("cross reference = %+v", ref)
	}
	if _, ok := seen["346.pdf|346.63"]; !ok {
		t.Error("resolved key should be added to seen")
	}
	if len(res.Lookups) != 1 || res.Lookups[0].Status != StatusResolved || res.Lookups[0].Added != 1 {
		t.Errorf("lookups = %+v", res.Lookups)
	}
}

func TestResolve_skipsSeenAndNotFound(t *testing.T) {
	idx := &sectionIndex{sections: map[string][]*models.Passage{
		"346.63": {statute("s-346-63", "346.63")},
	}}
	top := []*models.ScoredCandidate{candidate("§ 346.63 and s. 999.99", models.Metadata{})}
	seen := map[string]struct{}{"346.pdf|346.63": {}}

	res := NewResolver(idx).Resolve(context.Background(), top, seen)
	if len(res.CrossRefs) != 0 {
		t.Errorf("already seen section should not be added, got %v", res.CrossRefs)
	}
	want := []string{StatusResolved, StatusNotFound}
	for i, l := range res.Lookups {
		if l.Status != want[i] {
			t.Errorf("lookup %d status = %s, want %s", i, l.Status, want[i])
		}
	}
}

func TestResolve_failureDoesNotAbort(t *testing.T) {
	idx := &sectionIndex{
		sections: map[string][]*models.Passage{"940.01": {statute("s-940-01", "940.01")}},
		failing:  map[string]bool{"346.63": true},
	}
	top := []*models.ScoredCandidate{
		candidate("§ 346.63", models.Metadata{}),
		candidate("see s. 940.01", models.Metadata{}),
	}
	m := metrics.New()
	res := NewResolver(idx, WithMetrics(m)).Resolve(context.Background(), top, map[string]struct{}{})

	if !reflect.DeepEqual(idx.calls, []string{"346.63", "940.01"}) {
		t.Errorf("lookups issued = %v", idx.calls)
	}
	if len(res.CrossRefs) != 1 || res.CrossRefs[0].ID != "s-940-01" {
		t.Errorf("cross refs = %v", res.CrossRefs)
	}
	if res.Failed() != 1 {
		t.Errorf("Failed = %d", res.Failed())
	}
	if !errors.Is(res.Lookups[0].Err, index.ErrIndexUnavailable) {
		t.Errorf("failed lookup should keep its error, got %v", res.Lookups[0].Err)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var failed float64
	for _, f := range families {
		if f.GetName() != "wislaw_retrieval_crossref_lookups_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetValue() == StatusFailed {
					failed = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed lookup counter = %v", failed)
	}
}

func TestResolve_noCitations(t *testing.T) {
	idx := &sectionIndex{}
	res := NewResolver(idx).Resolve(context.Background(), []*models.ScoredCandidate{candidate("nothing cited", models.Metadata{})}, map[string]struct{}{})
	if len(res.CrossRefs) != 0 || len(res.Lookups) != 0 || len(idx.calls) != 0 {
		t.Errorf("expected no lookups, got %+v", res)
	}
}
