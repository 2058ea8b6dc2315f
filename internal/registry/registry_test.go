package registry

import (
	"context"
	"strings"
	"sync"
	"testing"

	"idgaf/pkg/types"
)

// scriptAdapter is a configurable fake format driver.
type scriptAdapter struct {
	mu      sync.Mutex
	format  types.ModelFormat
	caps    types.AdapterCapabilities
	handles func(path string, info *types.ModelInfo) bool
	unloads []string
}

func (a *scriptAdapter) Format() types.ModelFormat     { return a.format }
func (a *scriptAdapter) Modalities() []types.ModelType { return []types.ModelType{types.TypeLLM} }
func (a *scriptAdapter) CanHandle(path string, info *types.ModelInfo) bool {
	if a.handles != nil {
		return a.handles(path, info)
	}
	return strings.HasSuffix(path, "."+string(a.format))
}
func (a *scriptAdapter) Capabilities() types.AdapterCapabilities { return a.caps }
func (a *scriptAdapter) Load(_ context.Context, path string, _ types.LoadOptions) (*types.LoadedModel, error) {
	return &types.LoadedModel{ID: types.NewModelID(a.format), Adapter: a}, nil
}
func (a *scriptAdapter) Unload(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unloads = append(a.unloads, id)
	return nil
}

func TestRegisterAdapterLastWins(t *testing.T) {
	r := New()
	first := &scriptAdapter{format: "gguf"}
	second := &scriptAdapter{format: "gguf", caps: types.AdapterCapabilities{Streaming: true}}
	r.RegisterAdapter(first)
	r.RegisterAdapter(second)
	got, ok := r.Adapter("gguf")
	if !ok || got != types.ModelAdapter(second) {
		t.Fatalf("expected last registration to win")
	}
	if n := len(r.Adapters()); n != 1 {
		t.Fatalf("duplicate format must not grow the adapter list: %d", n)
	}
}

func TestSelectBestAdapterScoring(t *testing.T) {
	r := New()
	alpha := &scriptAdapter{
		format: "alpha",
		caps:   types.AdapterCapabilities{Streaming: true, GPU: true, Quantizations: []string{"q4"}},
	}
	beta := &scriptAdapter{format: "beta"}
	r.RegisterAdapter(alpha)
	r.RegisterAdapter(beta)

	info := &types.ModelInfo{Format: "alpha"}
	hw := &types.HardwareInfo{HasGPU: true}
	// alpha scores 100+50+20+10=180; beta cannot handle the path at all.
	got := r.SelectBestAdapter("model.alpha", info, hw)
	if got != types.ModelAdapter(alpha) {
		t.Fatalf("expected alpha selected")
	}

	// Determinism: repeated calls agree.
	for i := 0; i < 10; i++ {
		if r.SelectBestAdapter("model.alpha", info, hw) != types.ModelAdapter(alpha) {
			t.Fatalf("selection not deterministic on call %d", i)
		}
	}

	// No adapter handles the path: nil, not an error.
	if r.SelectBestAdapter("model.zip", nil, hw) != nil {
		t.Fatalf("expected nil for unhandled path")
	}
}

func TestSelectBestAdapterTieFirstRegisteredWins(t *testing.T) {
	r := New()
	any := func(string, *types.ModelInfo) bool { return true }
	first := &scriptAdapter{format: "gguf", handles: any}
	second := &scriptAdapter{format: "onnx", handles: any}
	r.RegisterAdapter(first)
	r.RegisterAdapter(second)
	// No info, no hardware: both score 0.
	if got := r.SelectBestAdapter("whatever.bin", nil, nil); got != types.ModelAdapter(first) {
		t.Fatalf("tie must go to the first registered adapter")
	}
}

func TestLoadedModelTracking(t *testing.T) {
	r := New()
	a := &scriptAdapter{format: "gguf"}
	m1 := &types.LoadedModel{ID: "m1", Info: types.ModelInfo{Size: 100}, Adapter: a}
	m2 := &types.LoadedModel{ID: "m2", Info: types.ModelInfo{Size: 50}, Adapter: a}
	r.RegisterLoaded(m1)
	r.RegisterLoaded(m2)

	if got, ok := r.Loaded("m1"); !ok || got != m1 {
		t.Fatalf("expected m1 tracked")
	}
	all := r.AllLoaded()
	if len(all) != 2 || all[0] != m1 || all[1] != m2 {
		t.Fatalf("expected load order preserved, got %v", all)
	}
	if got := r.MemoryUsage(); got != 150 {
		t.Fatalf("expected 150 bytes reported, got %d", got)
	}
}

func TestUnloadAwaitsAdapterThenRemoves(t *testing.T) {
	r := New()
	a := &scriptAdapter{format: "gguf"}
	m := &types.LoadedModel{ID: "m1", Adapter: a}
	r.RegisterLoaded(m)
	if err := r.Unload(context.Background(), "m1"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if len(a.unloads) != 1 || a.unloads[0] != "m1" {
		t.Fatalf("adapter unload not awaited: %v", a.unloads)
	}
	if _, ok := r.Loaded("m1"); ok {
		t.Fatalf("m1 still tracked after unload")
	}
	// Unknown id is a no-op, not an error.
	if err := r.Unload(context.Background(), "ghost"); err != nil {
		t.Fatalf("unload of unknown id: %v", err)
	}
}

func TestForgetSkipsAdapter(t *testing.T) {
	r := New()
	a := &scriptAdapter{format: "gguf"}
	r.RegisterLoaded(&types.LoadedModel{ID: "m1", Adapter: a})
	r.Forget("m1")
	if len(a.unloads) != 0 {
		t.Fatalf("forget must not call the adapter")
	}
	if _, ok := r.Loaded("m1"); ok {
		t.Fatalf("m1 still tracked after forget")
	}
	if got := len(r.AllLoaded()); got != 0 {
		t.Fatalf("load order not cleaned: %d", got)
	}
}
