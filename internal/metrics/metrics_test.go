package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProvider_ServesPipelineCollectors(t *testing.T) {
	p := Init("test")
	p.Pipeline.CacheResult("fgb-extent", "hit")
	p.Pipeline.Extent("FlatGeobuf", "ok")
	p.Pipeline.Layer("GeoJSON", "ok")
	p.Pipeline.ObserveProcess(0.25)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"go_goroutines",
		`geostyle_build_info{version="test"} 1`,
		`geostyle_cache_requests_total{cache="fgb-extent",result="hit"} 1`,
		`geostyle_extent_total{format="FlatGeobuf",outcome="ok"} 1`,
		"geostyle_pipeline_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in payload; got:\n%s", want, body)
		}
	}
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var p *Pipeline
	p.CacheResult("x", "hit")
	p.Extent("x", "ok")
	p.Layer("x", "ok")
	p.ObserveProcess(1)
}

func TestPipeline_Counts(t *testing.T) {
	p := NewPipeline(nil)
	p.Layer("default", "ok")
	p.Layer("default", "ok")
	if got := testutil.ToFloat64(p.Layers.WithLabelValues("default", "ok")); got != 2 {
		t.Fatalf("layers=%v, want 2", got)
	}
}
