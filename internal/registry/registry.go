// Package registry owns the format→adapter mapping, adapter selection
// scoring, and the set of currently loaded model instances. The registry is
// "known loaded"; bounding resident memory is the cache's job.
package registry

import (
	"context"
	"sync"

	"idgaf/pkg/types"
)

// Registry tracks registered adapters and loaded models.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.ModelFormat]types.ModelAdapter
	order    []types.ModelFormat
	loaded   map[string]*types.LoadedModel
	loadSeq  []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		adapters: make(map[types.ModelFormat]types.ModelAdapter),
		loaded:   make(map[string]*types.LoadedModel),
	}
}

// RegisterAdapter installs an adapter under its format tag. A later
// registration for the same format overwrites the earlier one; the format
// keeps its original position in the iteration order.
func (r *Registry) RegisterAdapter(a types.ModelAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := a.Format()
	if _, exists := r.adapters[f]; !exists {
		r.order = append(r.order, f)
	}
	r.adapters[f] = a
}

// Adapter returns the adapter registered for a format.
func (r *Registry) Adapter(format types.ModelFormat) (types.ModelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[format]
	return a, ok
}

// Adapters returns registered adapters in registration order.
func (r *Registry) Adapters() []types.ModelAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModelAdapter, 0, len(r.order))
	for _, f := range r.order {
		out = append(out, r.adapters[f])
	}
	return out
}

// SelectBestAdapter scores every adapter whose CanHandle accepts the input
// and returns the strictly highest scorer, ties going to the first
// registered. Returns nil when no adapter can handle the input; callers
// must treat nil as "no compatible adapter", not as an error.
//
// Scoring: +100 declared format matches info.Format, +50 hardware reports a
// GPU and the adapter supports GPU, +20 streaming support, +10 at least one
// supported quantization level.
func (r *Registry) SelectBestAdapter(path string, info *types.ModelInfo, hw *types.HardwareInfo) types.ModelAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best types.ModelAdapter
	bestScore := -1
	for _, f := range r.order {
		a := r.adapters[f]
		if !a.CanHandle(path, info) {
			continue
		}
		score := 0
		if info != nil && info.Format == a.Format() {
			score += 100
		}
		caps := a.Capabilities()
		if hw != nil && hw.HasGPU && caps.GPU {
			score += 50
		}
		if caps.Streaming {
			score += 20
		}
		if len(caps.Quantizations) > 0 {
			score += 10
		}
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best
}

// RegisterLoaded tracks a loaded model instance. No capacity bound: keeping
// growth in check is the caller's job, via the cache or explicit unloads.
func (r *Registry) RegisterLoaded(m *types.LoadedModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaded[m.ID]; !exists {
		r.loadSeq = append(r.loadSeq, m.ID)
	}
	r.loaded[m.ID] = m
}

// Loaded returns the loaded model for an id.
func (r *Registry) Loaded(id string) (*types.LoadedModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.loaded[id]
	return m, ok
}

// AllLoaded returns loaded models in load order.
func (r *Registry) AllLoaded() []*types.LoadedModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.LoadedModel, 0, len(r.loadSeq))
	for _, id := range r.loadSeq {
		if m, ok := r.loaded[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Unload awaits the owning adapter's unload for the id, then removes it
// from tracking. Unknown ids are a no-op.
func (r *Registry) Unload(ctx context.Context, id string) error {
	r.mu.RLock()
	m, ok := r.loaded[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := m.Adapter.Unload(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.loaded, id)
	for i, lid := range r.loadSeq {
		if lid == id {
			r.loadSeq = append(r.loadSeq[:i], r.loadSeq[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

// Forget drops an id from tracking without calling the adapter. Used when
// another component (the cache) already performed the unload.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[id]; !ok {
		return
	}
	delete(r.loaded, id)
	for i, lid := range r.loadSeq {
		if lid == id {
			r.loadSeq = append(r.loadSeq[:i], r.loadSeq[i+1:]...)
			break
		}
	}
}

// MemoryUsage sums declared sizes over loaded models. Reported size only,
// not actual resident memory.
func (r *Registry) MemoryUsage() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, m := range r.loaded {
		total += m.Info.Size
	}
	return total
}
