package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/logger"
	"github.com/joeblew999/plat-style/internal/metrics"
	"github.com/joeblew999/plat-style/internal/style"
)

type Options struct {
	// Concurrency bounds how many layers are processed at once; <= 0
	// means 4.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// LayerTimeout bounds one handler call; <= 0 means 30s.
	LayerTimeout time.Duration `json:"layerTimeout" yaml:"layerTimeout"`
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.LayerTimeout <= 0 {
		o.LayerTimeout = 30 * time.Second
	}
	return o
}

// Processor runs layer definitions through their handlers and applies the
// editor style.
type Processor struct {
	reg     *Registry
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Pipeline
}

func NewProcessor(reg *Registry, opts Options, log zerolog.Logger, m *metrics.Pipeline) *Processor {
	return &Processor{
		reg:     reg,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "pipeline").Logger(),
		metrics: m,
	}
}

func (p *Processor) Registry() *Registry { return p.reg }

// ProcessLayers returns one processed layer per input, in input order.
// Layers are independent: a failing handler leaves its layer without an
// extent and never fails the call. The inputs are not modified.
func (p *Processor) ProcessLayers(ctx context.Context, layers []layer.Layer, editor style.Document) []layer.Layer {
	start := time.Now()
	out := make([]layer.Layer, len(layers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := range layers {
		g.Go(func() error {
			out[i] = p.processOne(gctx, layers[i], editor)
			return nil
		})
	}
	_ = g.Wait()

	p.metrics.ObserveProcess(time.Since(start).Seconds())
	return out
}

func (p *Processor) processOne(ctx context.Context, in layer.Layer, editor style.Document) layer.Layer {
	l := in.Clone()
	h, name := p.reg.Dispatch(l)
	log := logger.FromContext(ctx, p.log).With().Str("handler", name).Str("source", l.SourceID()).Logger()

	outcome := "ok"
	if _, ok := l.Bounds(); ok {
		outcome = "cached"
	} else {
		got, err := p.run(ctx, h, l)
		if err != nil {
			outcome = "error"
			log.Error().Err(err).Str("layer", l.ID).Msg("layer handler failed, continuing without extent")
		} else {
			l = got
		}
	}
	p.metrics.Layer(name, outcome)

	l.AssignID()
	if editor != nil {
		applyEditorStyle(&l, editor)
	}
	return l
}

// run calls the handler under the layer timeout, turning a panic into an
// error.
func (p *Processor) run(ctx context.Context, h Handler, l layer.Layer) (out layer.Layer, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.LayerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			out, err = l, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.ProcessLayer(ctx, l.Clone())
}

// applyEditorStyle replaces a vector layer's style with the resolved editor
// style and attaches the editor config. Raster tile layers keep their own
// keys unless the editor style overrides them. Other kinds are untouched.
func applyEditorStyle(l *layer.Layer, editor style.Document) {
	switch l.Type {
	case layer.KindVector:
		resolved := style.Resolve(editor.Clone())
		l.Style = resolved

		cfgStyle := resolved.Clone()
		if vars := editor.Variables(); vars != nil {
			cfgStyle[style.VariablesKey] = style.Document(vars).Clone()
		}
		l.SetProperty(layer.PropLayerConfig, layer.EditorConfig{
			Schema: editor.Schema(),
			Style:  cfgStyle,
			Legend: editor.Legend(),
		})
	case layer.KindWebGLTile:
		l.Style = style.Merge(l.Style, editor.Clone())
	}
}
