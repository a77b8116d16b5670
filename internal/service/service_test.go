package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joeblew999/plat-style/internal/extent"
	"github.com/joeblew999/plat-style/internal/fetch"
	ft "github.com/joeblew999/plat-style/internal/format/formattest"
	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/logger"
	"github.com/joeblew999/plat-style/internal/metrics"
	"github.com/joeblew999/plat-style/internal/pipeline"
	"github.com/joeblew999/plat-style/internal/style"
)

// fakeProcessor records calls and gives every layer with a source URL the
// extent [0,0,1,1].
type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	inputs  [][]layer.Layer
	editors []style.Document
	block   chan struct{}
}

func (f *fakeProcessor) ProcessLayers(_ context.Context, ls []layer.Layer, editor style.Document) []layer.Layer {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, ls)
	f.editors = append(f.editors, editor)
	f.mu.Unlock()

	out := make([]layer.Layer, len(ls))
	for i, l := range ls {
		l = l.Clone()
		l.AssignID()
		if _, ok := l.Bounds(); !ok && len(l.URLs()) > 0 {
			l.Extent = []float64{0, 0, 1, 1}
		}
		l.Style = editor.Clone()
		out[i] = l
	}
	return out
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newState(p LayerProcessor) *StateService {
	return NewStateService(p, nil, 0, logger.Nop())
}

func vectorLayer(id, url string) layer.Layer {
	return layer.Layer{
		Type:       layer.KindVector,
		Properties: map[string]any{"id": id},
		Source:     &layer.Source{Type: "FlatGeoBuf", URL: url},
	}
}

func TestSelectExample_Layers(t *testing.T) {
	p := &fakeProcessor{}
	s := newState(p)
	ex := Example{
		ID:     "ex",
		Style:  `{"fill-color":"red"}`,
		Layers: []layer.Layer{vectorLayer("a", "a.fgb"), {Type: "Tile", Source: &layer.Source{Type: "OSM"}}},
	}
	snap, err := s.SelectExample(context.Background(), ex)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Example != "ex" || len(snap.Layers) != 2 || snap.Style["fill-color"] != "red" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if p.editors[0]["fill-color"] != "red" {
		t.Fatalf("editor style=%v, want parsed example style", p.editors[0])
	}
	if snap.Layers[0].ID != "a" {
		t.Fatalf("id=%q, want a", snap.Layers[0].ID)
	}
}

func TestSelectExample_LegacyDataURL(t *testing.T) {
	p := &fakeProcessor{}
	s := newState(p)
	snap, err := s.SelectExample(context.Background(), Example{
		ID:      "legacy",
		Name:    "Legacy",
		DataURL: "https://x/TCI.tif",
		Style:   map[string]any{"color": "blue"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.count() != 0 {
		t.Fatal("legacy path ran the pipeline")
	}
	if len(snap.Layers) != 1 {
		t.Fatalf("layers=%d, want 1", len(snap.Layers))
	}
	l := snap.Layers[0]
	if l.ID != ExampleLayerID || l.Type != layer.KindWebGLTile || l.Extent != nil || l.Style["color"] != "blue" {
		t.Fatalf("layer=%+v", l)
	}
}

func TestSelectExample_BadStyle(t *testing.T) {
	s := newState(&fakeProcessor{})
	if _, err := s.SelectExample(context.Background(), Example{ID: "x", Style: `{"a":`}); err == nil {
		t.Fatal("expected style parse error")
	}
	if s.Snapshot().Version != 0 {
		t.Fatal("failed select published state")
	}
}

func TestUpdateStyle_KeepsExtents(t *testing.T) {
	p := &fakeProcessor{}
	s := newState(p)
	ex := Example{
		ID: "ex",
		Layers: []layer.Layer{
			vectorLayer("a", "a.fgb"),
			{Type: "Tile", Source: &layer.Source{Type: "OSM"}},
		},
	}
	first, err := s.SelectExample(context.Background(), ex)
	if err != nil {
		t.Fatal(err)
	}
	osmID := first.Layers[1].ID

	snap, err := s.UpdateStyle(context.Background(), map[string]any{"stroke-width": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	in := p.inputs[1]
	if in[0].Extent == nil {
		t.Fatal("rerun input lost the computed extent")
	}
	if in[1].ID != osmID {
		t.Fatalf("osm id=%q, want %q", in[1].ID, osmID)
	}
	if snap.Style["stroke-width"] != 3.0 || snap.Layers[0].Style["stroke-width"] != 3.0 {
		t.Fatalf("style=%v layer style=%v", snap.Style, snap.Layers[0].Style)
	}
	if ex.Layers[0].Extent != nil {
		t.Fatal("example definition modified")
	}
}

func TestUpdateStyle_Legacy(t *testing.T) {
	s := newState(&fakeProcessor{})
	if _, err := s.SelectExample(context.Background(), Example{ID: "l", DataURL: "a.geojson"}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.UpdateStyle(context.Background(), "fill-color: green")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Layers[0].ID != ExampleLayerID || snap.Layers[0].Style["fill-color"] != "green" {
		t.Fatalf("layer=%+v", snap.Layers[0])
	}
}

func TestUpdateStyle_LegacyWithAddedLayer(t *testing.T) {
	p := &fakeProcessor{}
	s := newState(p)
	if _, err := s.SelectExample(context.Background(), Example{ID: "l", DataURL: "a.tif"}); err != nil {
		t.Fatal(err)
	}
	s.AddLayer(vectorLayer("b", "b.fgb"))

	snap, err := s.UpdateStyle(context.Background(), `{"fill-color":"green"}`)
	if err != nil {
		t.Fatal(err)
	}
	if p.count() != 1 {
		t.Fatalf("pipeline runs=%d, want 1", p.count())
	}
	for _, l := range p.inputs[0] {
		if l.ID == ExampleLayerID {
			t.Fatal("generated example layer sent through the pipeline")
		}
	}
	if len(snap.Layers) != 2 {
		t.Fatalf("layers=%d, want 2", len(snap.Layers))
	}
	if l := snap.Layers[0]; l.ID != ExampleLayerID || l.Extent != nil || l.Style["fill-color"] != "green" {
		t.Fatalf("example layer=%+v", l)
	}
	if l := snap.Layers[1]; l.ID != "b" || l.Extent == nil || l.Style["fill-color"] != "green" {
		t.Fatalf("added layer=%+v", l)
	}
}

// newPipelineState wires the state service to the real pipeline, reading
// data from files in a temp dir.
func newPipelineState(t *testing.T, files map[string][]byte) (*StateService, string) {
	t.Helper()
	dir := t.TempDir()
	for name, b := range files {
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f, err := fetch.NewHTTP(fetch.Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.NewPipeline(prometheus.NewRegistry())
	calcs := pipeline.NewCalculators(extent.Options{Fetcher: f, Logger: logger.Nop(), Metrics: m})
	proc := pipeline.NewProcessor(pipeline.DefaultRegistry(calcs, logger.Nop()), pipeline.Options{}, logger.Nop(), m)
	return newState(proc), "file://" + filepath.ToSlash(dir) + "/"
}

func TestUpdateStyle_RasterMergesOntoCurrentStyle(t *testing.T) {
	s, base := newPipelineState(t, map[string][]byte{"tci.tif": ft.NorthUp(4326, 10, 21, 0.5, 2, 2)})
	ex := Example{
		ID:    "raster",
		Style: map[string]any{"color": "red", "opacity": 0.5},
		Layers: []layer.Layer{{
			Type:   layer.KindWebGLTile,
			ID:     "tci",
			Source: &layer.Source{Type: "GeoTIFF", Sources: []layer.SourceRef{{URL: base + "tci.tif"}}},
			Style:  style.Document{"variables": map[string]any{"band": 1.0}},
		}},
	}
	first, err := s.SelectExample(context.Background(), ex)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := first.Layers[0].Bounds(); !ok {
		t.Fatalf("extent=%v, want a measured extent", first.Layers[0].Extent)
	}

	snap, err := s.UpdateStyle(context.Background(), map[string]any{"color": "blue"})
	if err != nil {
		t.Fatal(err)
	}
	got := snap.Layers[0]
	if got.Style["color"] != "blue" || got.Style["opacity"] != 0.5 || got.Style.Variables()["band"] != 1.0 {
		t.Fatalf("style=%v, want color blue with opacity and variables kept", got.Style)
	}
	if got.ID != "tci" {
		t.Fatalf("id=%q, want tci", got.ID)
	}
	for i, v := range first.Layers[0].Extent {
		if got.Extent[i] != v {
			t.Fatalf("extent=%v, want %v", got.Extent, first.Layers[0].Extent)
		}
	}
}

func TestLayerMutations(t *testing.T) {
	s := newState(&fakeProcessor{})
	a := s.AddLayer(layer.Layer{Type: layer.KindVector, ID: "a"})
	s.AddLayer(layer.Layer{Type: layer.KindVector})
	if a.ID != "a" || len(s.Snapshot().Layers) != 2 {
		t.Fatalf("snapshot=%+v", s.Snapshot())
	}
	if err := s.RemoveLayer("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveLayer("a"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("err=%v, want ErrLayerNotFound", err)
	}
	if n := len(s.Snapshot().Layers); n != 1 {
		t.Fatalf("layers=%d, want 1", n)
	}
	if snap := s.ClearAllLayers(); len(snap.Layers) != 0 {
		t.Fatalf("layers=%d after clear", len(snap.Layers))
	}
}

func TestClearExample(t *testing.T) {
	s := newState(&fakeProcessor{})
	if _, err := s.SelectExample(context.Background(), Example{ID: "ex", Style: `{"a":1}`, DataURL: "a.fgb"}); err != nil {
		t.Fatal(err)
	}
	snap := s.ClearExample()
	if snap.Example != "" || snap.Style != nil || len(snap.Layers) != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestSetCustomDataLayers(t *testing.T) {
	p := &fakeProcessor{}
	s := newState(p)
	snap := s.SetCustomDataLayers(context.Background(), []layer.Layer{vectorLayer("c", "c.fgb")})
	if !snap.CustomDataLayers || snap.Example != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if p.editors[0]["stroke-color"] != "#3399CC" || p.editors[0]["stroke-width"] != 1.25 {
		t.Fatalf("editor=%v, want default style", p.editors[0])
	}

	if _, err := s.UpdateStyle(context.Background(), `{"stroke-color":"red"}`); err != nil {
		t.Fatal(err)
	}
	snap = s.SetCustomDataLayers(context.Background(), []layer.Layer{vectorLayer("d", "d.fgb")})
	if p.editors[2]["stroke-color"] != "red" {
		t.Fatalf("editor=%v, want current style", p.editors[2])
	}
	if snap.Layers[0].ID != "d" {
		t.Fatalf("layers=%+v", snap.Layers)
	}
}

func TestToggleLayerControl(t *testing.T) {
	s := newState(&fakeProcessor{})
	if !s.Snapshot().LayerControl {
		t.Fatal("layer control hidden by default")
	}
	if s.ToggleLayerControl() {
		t.Fatal("toggle did not hide")
	}
	if !s.ToggleLayerControl() {
		t.Fatal("toggle did not show")
	}
}

func TestOperationsAreSerialized(t *testing.T) {
	p := &fakeProcessor{block: make(chan struct{})}
	s := newState(p)

	done := make(chan struct{})
	go func() {
		_, _ = s.SelectExample(context.Background(), Example{ID: "first", Layers: []layer.Layer{vectorLayer("a", "a.fgb")}})
		close(done)
	}()
	// wait until the first call is inside the pipeline
	deadline := time.Now().Add(time.Second)
	for !s.Snapshot().Loading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	added := make(chan struct{})
	go func() {
		s.AddLayer(layer.Layer{ID: "late"})
		close(added)
	}()
	select {
	case <-added:
		t.Fatal("AddLayer ran while SelectExample was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(p.block)
	<-done
	<-added
	snap := s.Snapshot()
	if len(snap.Layers) != 2 || snap.Layers[1].ID != "late" {
		t.Fatalf("layers=%+v", snap.Layers)
	}
}

func TestSnapshotsArePublished(t *testing.T) {
	s := newState(&fakeProcessor{})
	ch := s.Bus().Subscribe()
	defer s.Bus().Unsubscribe(ch)

	s.ToggleLayerControl()
	select {
	case e := <-ch:
		if e.Action != "layer-control" || e.Snapshot.LayerControl {
			t.Fatalf("event=%+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestLoading_Grace(t *testing.T) {
	var mu sync.Mutex
	var changes []bool
	l := NewLoading(30*time.Millisecond, func(on bool, _ string) {
		mu.Lock()
		changes = append(changes, on)
		mu.Unlock()
	})

	l.Start()
	if on, hint := l.State(); !on || hint == "" {
		t.Fatalf("state=%v,%q, want on with hint", on, hint)
	}
	l.Stop()
	if on, _ := l.State(); !on {
		t.Fatal("turned off before the grace period")
	}
	// a restart inside the grace period cancels the pending stop
	l.Start()
	time.Sleep(60 * time.Millisecond)
	if on, _ := l.State(); !on {
		t.Fatal("stale stop turned the indicator off")
	}
	l.Stop()
	time.Sleep(80 * time.Millisecond)
	if on, hint := l.State(); on || hint != "" {
		t.Fatalf("state=%v,%q, want off", on, hint)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Fatalf("changes=%v, want [true false]", changes)
	}
}

func TestCatalog_Default(t *testing.T) {
	c, err := NewCatalogService("")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(c.List()); n != 3 {
		t.Fatalf("examples=%d, want 3", n)
	}
	ex, err := c.Get("greenland-ice-thickness")
	if err != nil {
		t.Fatal(err)
	}
	if ex.Layers[0].Source.Type != "FlatGeoBuf" || ex.Layers[0].Property("id") != "FgbLayer" {
		t.Fatalf("layer=%+v", ex.Layers[0])
	}
	// anchored styles are expanded into each use
	st, err := style.Parse(ex.Style)
	if err != nil || !st.HasVariables() || ex.Layers[0].Style["circle-radius"] != 4.0 {
		t.Fatalf("style=%v layer style=%v err=%v", st, ex.Layers[0].Style, err)
	}
	crops, _ := c.Get("crop-circles")
	if crops.Layers[0].Type != layer.KindWebGLTile || len(crops.Layers[0].URLs()) != 1 {
		t.Fatalf("crop layer=%+v", crops.Layers[0])
	}
	if _, err := c.Get("nope"); !errors.Is(err, ErrExampleNotFound) {
		t.Fatalf("err=%v, want ErrExampleNotFound", err)
	}
}

func TestCatalog_Invalid(t *testing.T) {
	for name, src := range map[string]string{
		"no id":     "examples:\n  - name: x\n",
		"duplicate": "examples:\n  - id: a\n  - id: a\n",
		"yaml":      "examples: [",
	} {
		if _, err := ParseCatalog([]byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := NewCatalogService(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDataService_List(t *testing.T) {
	dir := t.TempDir()
	for name, size := range map[string]int{"b.fgb": 10, "a.geojson": 2048, "notes.txt": 1, "c.TIF": 1} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := NewDataService(dir, "data").List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("files=%+v", files)
	}
	if files[0].Name != "a.geojson" || files[0].Size != "2.0 KB" || files[0].URL != "/data/a.geojson" || files[0].Format != "GeoJSON" {
		t.Fatalf("file=%+v", files[0])
	}
	if files[2].Format != "GeoTIFF" {
		t.Fatalf("file=%+v", files[2])
	}

	if files, err := NewDataService(filepath.Join(dir, "none"), "").List(); err != nil || len(files) != 0 {
		t.Fatalf("missing dir: files=%v err=%v", files, err)
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus[int]()
	ch := b.Subscribe()
	for i := range 100 {
		b.Publish(i)
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered=%d, want %d", len(ch), cap(ch))
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	if b.Len() != 0 {
		t.Fatal("subscriber not removed")
	}
}
