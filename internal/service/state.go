package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/style"
)

// ExampleLayerID is the id of the single layer generated for examples that
// only declare a data URL.
const ExampleLayerID = "example-layer"

var ErrLayerNotFound = errors.New("layer not found")

// LayerProcessor is the layer pipeline as the state manager sees it.
type LayerProcessor interface {
	ProcessLayers(ctx context.Context, layers []layer.Layer, editor style.Document) []layer.Layer
}

// StateService owns the selected example, the current style and the
// derived layer list. State-changing operations run one at a time; a call
// waits for the one in flight. Every change publishes a snapshot.
type StateService struct {
	proc    LayerProcessor
	bus     *Bus[Event]
	log     zerolog.Logger
	loading *Loading

	op sync.Mutex

	mu      sync.RWMutex
	example *Example
	style   style.Document
	raw     []layer.Layer
	layers  []layer.Layer
	custom  bool
	control bool
	version uint64
}

func NewStateService(proc LayerProcessor, bus *Bus[Event], grace time.Duration, log zerolog.Logger) *StateService {
	if bus == nil {
		bus = NewBus[Event]()
	}
	s := &StateService{
		proc:    proc,
		bus:     bus,
		log:     log.With().Str("component", "state").Logger(),
		control: true,
	}
	s.loading = NewLoading(grace, func(bool, string) { s.publish("loading") })
	return s
}

func (s *StateService) Bus() *Bus[Event] { return s.bus }

// Snapshot returns the current state. The layers are shared with the
// service and must be treated as read-only.
func (s *StateService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *StateService) snapshotLocked() Snapshot {
	loading, hint := s.loading.State()
	snap := Snapshot{
		Version:          s.version,
		Style:            s.style,
		Layers:           append([]layer.Layer{}, s.layers...),
		Loading:          loading,
		Hint:             hint,
		LayerControl:     s.control,
		CustomDataLayers: s.custom,
	}
	if s.example != nil {
		snap.Example = s.example.ID
	}
	return snap
}

func (s *StateService) publish(action string) Snapshot {
	s.mu.Lock()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.bus.Publish(Event{Action: action, Snapshot: snap})
	return snap
}

// SelectExample makes ex current. Declared layers run through the
// pipeline with the example style as editor style; otherwise one layer is
// generated from the data URL without an extent.
func (s *StateService) SelectExample(ctx context.Context, ex Example) (Snapshot, error) {
	st, err := style.Parse(ex.Style)
	if err != nil {
		return Snapshot{}, fmt.Errorf("example %q: %w", ex.ID, err)
	}

	s.op.Lock()
	defer s.op.Unlock()
	s.loading.Start()
	defer s.loading.Stop()

	var layers []layer.Layer
	switch {
	case len(ex.Layers) > 0:
		layers = s.proc.ProcessLayers(ctx, ex.Layers, st)
	case ex.DataURL != "":
		layers = []layer.Layer{legacyLayer(ex, st)}
	}
	s.log.Info().Str("example", ex.ID).Int("layers", len(layers)).Msg("example selected")

	s.mu.Lock()
	s.example = &ex
	s.style = st
	s.raw = append([]layer.Layer(nil), ex.Layers...)
	s.layers = layers
	s.custom = false
	s.mu.Unlock()
	return s.publish("example"), nil
}

func legacyLayer(ex Example, st style.Document) layer.Layer {
	return layer.Generate(layer.Dataset{
		DataURL: ex.DataURL,
		Name:    ex.Name,
		Style:   st,
		ID:      ExampleLayerID,
	})
}

// UpdateStyle applies a new style to the current layers. Layers with an
// extent are restyled as they stand; only layers without one are measured
// again from their raw definitions. The layer generated for a data-URL-only
// example is regenerated and never measured.
func (s *StateService) UpdateStyle(ctx context.Context, v any) (Snapshot, error) {
	st, err := style.Parse(v)
	if err != nil {
		return Snapshot{}, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	ex, raw, cur := s.example, s.raw, s.layers
	s.mu.RUnlock()

	legacy := ex != nil && len(ex.Layers) == 0 && ex.DataURL != ""
	next := reuseLayers(cur, raw)
	layers := make([]layer.Layer, len(next))
	var in []layer.Layer
	var slots []int
	for i, l := range next {
		if legacy && l.ID == ExampleLayerID {
			layers[i] = legacyLayer(*ex, st)
			continue
		}
		in = append(in, l)
		slots = append(slots, i)
	}
	if len(in) > 0 {
		s.loading.Start()
		defer s.loading.Stop()
		for k, l := range s.proc.ProcessLayers(ctx, in, st) {
			layers[slots[k]] = l
		}
	}

	s.mu.Lock()
	s.style = st
	s.layers = layers
	s.mu.Unlock()
	return s.publish("style"), nil
}

// reuseLayers picks the input for a style-only rerun. A current layer with
// a usable extent is rerun as it is. One without is matched to its raw
// definition by id, or by position when the lists line up, and restarts
// from it under the same id. Unmatched layers are rerun as they are.
func reuseLayers(cur, raw []layer.Layer) []layer.Layer {
	if len(cur) == 0 {
		return raw
	}
	byID := make(map[string]layer.Layer, len(raw))
	for _, r := range raw {
		id := r.Property(layer.PropID)
		if id == "" {
			id = r.ID
		}
		if id != "" {
			byID[id] = r
		}
	}

	out := make([]layer.Layer, len(cur))
	for i, c := range cur {
		if _, ok := c.Bounds(); ok {
			out[i] = c.Clone()
			continue
		}
		r, ok := byID[c.ID]
		if !ok && len(cur) == len(raw) {
			r, ok = raw[i], true
		}
		if !ok {
			out[i] = c.Clone()
			continue
		}
		next := r.Clone()
		next.ID = c.ID
		next.SetProperty(layer.PropID, c.ID)
		out[i] = next
	}
	return out
}

// AddLayer appends an ad-hoc layer as given, assigning an id.
func (s *StateService) AddLayer(l layer.Layer) layer.Layer {
	s.op.Lock()
	defer s.op.Unlock()

	l = l.Clone()
	l.AssignID()
	s.mu.Lock()
	s.layers = append(append([]layer.Layer(nil), s.layers...), l)
	s.raw = append(append([]layer.Layer(nil), s.raw...), l)
	s.mu.Unlock()
	s.publish("layers")
	return l
}

// RemoveLayer removes the layer with the given id.
func (s *StateService) RemoveLayer(id string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	layers, removed := without(s.layers, id)
	if !removed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	s.layers = layers
	s.raw, _ = without(s.raw, id)
	s.mu.Unlock()
	s.publish("layers")
	return nil
}

func without(ls []layer.Layer, id string) ([]layer.Layer, bool) {
	out := make([]layer.Layer, 0, len(ls))
	for _, l := range ls {
		if l.ID == id || l.Property(layer.PropID) == id {
			continue
		}
		out = append(out, l)
	}
	return out, len(out) != len(ls)
}

// ClearAllLayers drops every layer but keeps the example and style.
func (s *StateService) ClearAllLayers() Snapshot {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.layers = nil
	s.raw = nil
	s.mu.Unlock()
	return s.publish("layers")
}

// ClearExample resets the example, the style and all layers.
func (s *StateService) ClearExample() Snapshot {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.example = nil
	s.style = nil
	s.layers = nil
	s.raw = nil
	s.custom = false
	s.mu.Unlock()
	return s.publish("example")
}

// SetCustomDataLayers replaces the example with ad-hoc layers, styled with
// the current style or style.Default when there is none.
func (s *StateService) SetCustomDataLayers(ctx context.Context, ls []layer.Layer) Snapshot {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	st := s.style
	s.mu.RUnlock()
	if st == nil {
		st = style.Default()
	}

	s.loading.Start()
	defer s.loading.Stop()
	layers := s.proc.ProcessLayers(ctx, ls, st)

	s.mu.Lock()
	s.example = nil
	s.style = st
	s.raw = append([]layer.Layer(nil), ls...)
	s.layers = layers
	s.custom = true
	s.mu.Unlock()
	return s.publish("layers")
}

// ToggleLayerControl flips layer control visibility and returns the new
// value.
func (s *StateService) ToggleLayerControl() bool {
	s.mu.Lock()
	s.control = !s.control
	v := s.control
	s.mu.Unlock()
	s.publish("layer-control")
	return v
}
