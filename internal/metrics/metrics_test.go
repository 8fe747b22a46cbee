package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func gathered(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			key := f.GetName()
			for _, l := range metric.GetLabel() {
				key += "|" + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestRecordQuery(t *testing.T) {
	m := New()
	m.RecordQuery(OutcomeOK, 4, 0.9, 20*time.Millisecond)
	m.RecordQuery(OutcomeOK, 2, 0.5, 10*time.Millisecond)
	m.RecordQuery(OutcomeUnavailable, 0, 0, time.Millisecond)
	m.RecordQuery("", 0, 0, time.Millisecond)

	got := gathered(t, m)
	if got["wislaw_retrieval_queries_total|outcome=ok"] != 2 {
		t.Errorf("ok queries = %v", got["wislaw_retrieval_queries_total|outcome=ok"])
	}
	if got["wislaw_retrieval_queries_total|outcome=error"] != 1 {
		t.Errorf("blank outcome should be counted as error")
	}
	if got["wislaw_retrieval_duration_seconds"] != 4 {
		t.Errorf("duration samples = %v", got["wislaw_retrieval_duration_seconds"])
	}
	if got["wislaw_retrieval_results"] != 2 || got["wislaw_retrieval_confidence"] != 2 {
		t.Errorf("failed queries should not observe results or confidence: %v", got)
	}
}

func TestRecordCrossRefAndPassages(t *testing.T) {
	m := New()
	m.RecordCrossRefLookup("failed")
	m.RecordCrossRefLookup("failed")
	m.RecordCrossRefLookup("resolved")
	m.RecordPassagesLoaded("ok", 250)
	m.RecordPassagesLoaded("ok", 0)

	got := gathered(t, m)
	if got["wislaw_retrieval_crossref_lookups_total|status=failed"] != 2 {
		t.Errorf("failed lookups = %v", got)
	}
	if got["wislaw_indexer_passages_loaded_total|status=ok"] != 250 {
		t.Errorf("passages loaded = %v", got["wislaw_indexer_passages_loaded_total|status=ok"])
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordQuery(OutcomeOK, 1, 1, time.Second)
	m.RecordCrossRefLookup("failed")
	m.RecordPassagesLoaded("ok", 1)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("nil middleware should pass through, got %d", rec.Code)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/sections/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	for _, id := range []string{"346.63", "940.01"} {
		resp, err := http.Get(srv.URL + "/sections/" + id)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	want := `wislaw_http_requests_total{method="GET",route="/sections/{id}",status="404"} 2`
	if !strings.Contains(string(body), want) {
		t.Errorf("exposition missing %q:\n%s", want, body)
	}
}
