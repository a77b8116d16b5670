// Package metrics exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Provider struct {
	reg      *prometheus.Registry
	Pipeline *Pipeline
}

// Init creates a registry with the Go/process collectors and the pipeline
// collectors registered.
func Init(version string) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geostyle_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version"},
	)
	reg.MustRegister(build)
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version).Set(1)

	return &Provider{reg: reg, Pipeline: NewPipeline(reg)}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Pipeline groups the layer-processing collectors. A nil *Pipeline is valid
// and records nothing.
type Pipeline struct {
	CacheRequests  *prometheus.CounterVec
	Extents        *prometheus.CounterVec
	Layers         *prometheus.CounterVec
	ProcessSeconds prometheus.Histogram
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geostyle_cache_requests_total",
			Help: "URL cache lookups by cache name and result (hit, miss, shared).",
		}, []string{"cache", "result"}),
		Extents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geostyle_extent_total",
			Help: "Extent calculations by format and outcome (ok, empty, error).",
		}, []string{"format", "outcome"}),
		Layers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geostyle_layers_processed_total",
			Help: "Layers run through the pipeline by handler and outcome.",
		}, []string{"handler", "outcome"}),
		ProcessSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geostyle_pipeline_duration_seconds",
			Help:    "Wall time of one processLayers invocation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(p.CacheRequests, p.Extents, p.Layers, p.ProcessSeconds)
	}
	return p
}

func (p *Pipeline) CacheResult(cache, result string) {
	if p == nil {
		return
	}
	p.CacheRequests.WithLabelValues(cache, result).Inc()
}

func (p *Pipeline) Extent(format, outcome string) {
	if p == nil {
		return
	}
	p.Extents.WithLabelValues(format, outcome).Inc()
}

func (p *Pipeline) Layer(handler, outcome string) {
	if p == nil {
		return
	}
	p.Layers.WithLabelValues(handler, outcome).Inc()
}

func (p *Pipeline) ObserveProcess(seconds float64) {
	if p == nil {
		return
	}
	p.ProcessSeconds.Observe(seconds)
}
