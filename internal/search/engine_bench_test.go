package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/models"
)

func BenchmarkEngineSearch(b *testing.B) {
	f := &fakeIndex{}
	for i := 0; i < 1000; i++ {
		section := fmt.Sprintf("346.%02d", i%100)
		text := fmt.Sprintf("Passage %d on operating while intoxicated. See s. 346.%02d.", i, (i+1)%100)
		f.hits = append(f.hits, hit(passage(fmt.Sprintf("p%d", i), "346.pdf", section, text, models.DocTypeStatute), float64(i)/1000))
	}
	e := NewEngine(f, nil)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Search(ctx, "What is the OWI penalty under 346.63?", 5, nil)
	}
}

func BenchmarkEngineSearch_filtered(b *testing.B) {
	f := &fakeIndex{}
	types := []models.DocType{models.DocTypeStatute, models.DocTypeCaseLaw, models.DocTypeDepartmentPolicy}
	for i := 0; i < 1000; i++ {
		p := passage(fmt.Sprintf("p%d", i), fmt.Sprintf("doc%d.pdf", i%10), "", "implied consent refusal", types[i%3])
		f.hits = append(f.hits, hit(p, float64(i)/1000))
	}
	e := NewEngine(f, nil)
	ctx := context.Background()
	filter := index.DocTypeFilter(string(models.DocTypeCaseLaw))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Search(ctx, "implied consent", 10, filter)
	}
}
