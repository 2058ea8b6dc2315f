// Package engine is the orchestrating façade: it resolves model files
// through the manager, selects adapters through the registry, bounds
// resident models with the LRU cache, and dispatches modality calls to the
// first compatible loaded model while tracking per-model performance.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"idgaf/internal/cache"
	"idgaf/internal/fault"
	"idgaf/internal/hardware"
	"idgaf/internal/manager"
	"idgaf/internal/registry"
	"idgaf/internal/stream"
	"idgaf/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCacheBytes   = 8 << 30
	defaultMaxPending   = 4
	defaultTokenTimeout = 60 * time.Second
)

// Config encapsulates all tunables for Engine construction.
type Config struct {
	ModelsDir string
	// CacheBytes bounds the summed declared size of resident models.
	CacheBytes int64
	// MaxPending bounds concurrent inference calls; further callers queue
	// FIFO behind the backpressure handler.
	MaxPending int
	// TokenTimeout is the per-token budget for streamed generation.
	TokenTimeout time.Duration
	// CacheMetaPath, when set, persists LRU recency metadata across restarts.
	CacheMetaPath string
	Logger        zerolog.Logger
	Publisher     EventPublisher
}

// Engine ties the registry, cache, and manager together behind the
// modality-call API.
type Engine struct {
	reg   *registry.Registry
	lru   *cache.LRU
	mgr   *manager.Manager
	log   zerolog.Logger
	pub   EventPublisher
	gate  *stream.Backpressure
	start time.Time

	tokenTimeout  time.Duration
	cacheMetaPath string

	mu      sync.Mutex
	metrics map[string]*types.PerformanceMetrics
}

// New constructs an Engine from Config.
func New(cfg Config) (*Engine, error) {
	mgr, err := manager.New(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = defaultCacheBytes
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = defaultTokenTimeout
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	e := &Engine{
		reg:           registry.New(),
		lru:           cache.NewLRU(cfg.CacheBytes),
		mgr:           mgr,
		log:           cfg.Logger,
		pub:           cfg.Publisher,
		gate:          stream.NewBackpressure(cfg.MaxPending),
		start:         time.Now(),
		tokenTimeout:  cfg.TokenTimeout,
		cacheMetaPath: cfg.CacheMetaPath,
		metrics:       make(map[string]*types.PerformanceMetrics),
	}
	// Evictions drop registry tracking too: the cache already unloaded the
	// adapter side, the registry must not keep a dead instance visible.
	e.lru.SetOnRemove(func(id string) {
		e.reg.Forget(id)
		e.pub.Publish(Event{Name: "evict", ModelID: id})
	})
	e.lru.LoadMetadata(cfg.CacheMetaPath)
	return e, nil
}

// Registry exposes the adapter/model registry for driver registration.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Cache exposes the LRU cache (status and tests).
func (e *Engine) Cache() *cache.LRU { return e.lru }

// Manager exposes the model resolver.
func (e *Engine) Manager() *manager.Manager { return e.mgr }

// RegisterAdapter installs a format driver.
func (e *Engine) RegisterAdapter(a types.ModelAdapter) { e.reg.RegisterAdapter(a) }

// LoadModel resolves pathOrURL, selects the best adapter, loads an
// instance, and tracks it in both registry and cache. Remote URLs are
// downloaded into the models directory first.
func (e *Engine) LoadModel(ctx context.Context, pathOrURL string, opts types.LoadOptions) (*types.LoadedModel, error) {
	path := pathOrURL
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		local, err := e.mgr.Download(ctx, pathOrURL, manager.DownloadOptions{MaxRetries: 2, BaseDelay: time.Second})
		if err != nil {
			return nil, err
		}
		path = local
	}

	info, err := e.mgr.Resolve(path)
	if err != nil {
		return nil, err
	}
	hw := hardware.Detect()
	adapter := e.reg.SelectBestAdapter(path, info, &hw)
	if adapter == nil {
		return nil, fault.New(fault.KindUnsupported, "no compatible adapter for %q", path)
	}

	e.pub.Publish(Event{Name: "load_start", Fields: map[string]any{"path": path, "format": string(adapter.Format())}})
	start := time.Now()
	model, err := adapter.Load(ctx, path, opts)
	if err != nil {
		e.log.Error().Err(err).Str("path", path).Msg("adapter load failed")
		return nil, fault.Wrap(fault.KindLoadFailure, err, "load %q", path)
	}
	if model.Info.Size == 0 && info != nil {
		model.Info = *info
	}
	loadDur := time.Since(start)

	e.reg.RegisterLoaded(model)
	key := opts.CacheKey
	if key == "" {
		key = path
	}
	if err := e.lru.Set(ctx, key, model); err != nil {
		// The instance cannot be admitted; undo the load entirely.
		_ = e.reg.Unload(ctx, model.ID)
		return nil, err
	}
	e.updateMetrics(model.ID, metricsUpdate{loadTime: &loadDur, memoryBytes: &model.Info.Size})
	modelLoads.Inc()
	e.pub.Publish(Event{Name: "load_ready", ModelID: model.ID, Fields: map[string]any{"dur_ms": loadDur.Milliseconds()}})
	e.log.Info().Str("model", model.ID).Dur("dur", loadDur).Msg("model loaded")
	e.lru.SaveMetadata(e.cacheMetaPath)
	return model, nil
}

// UnloadModel releases a loaded instance. Prefers the cache path so the
// entry and its bookkeeping go together; falls back to the registry for
// models registered without caching. Unknown ids are a no-op.
func (e *Engine) UnloadModel(ctx context.Context, id string) error {
	if key, ok := e.lru.KeyOf(id); ok {
		if err := e.lru.Delete(ctx, key); err != nil {
			return err
		}
		modelUnloads.Inc()
		e.pub.Publish(Event{Name: "unload_done", ModelID: id})
		e.lru.SaveMetadata(e.cacheMetaPath)
		return nil
	}
	if err := e.reg.Unload(ctx, id); err != nil {
		return err
	}
	modelUnloads.Inc()
	e.pub.Publish(Event{Name: "unload_done", ModelID: id})
	return nil
}

// Shutdown unloads everything and persists cache metadata.
func (e *Engine) Shutdown(ctx context.Context) {
	e.lru.SaveMetadata(e.cacheMetaPath)
	e.lru.Clear(ctx)
	for _, m := range e.reg.AllLoaded() {
		_ = e.reg.Unload(ctx, m.ID)
	}
}

// Ready reports whether the daemon can serve: the models directory must be
// reachable.
func (e *Engine) Ready() bool {
	_, err := e.mgr.Discover()
	return err == nil
}

// DiscoverModels lists model files in the models directory.
func (e *Engine) DiscoverModels() ([]types.ModelInfo, error) { return e.mgr.Discover() }

// WatchModels blocks watching the models directory, logging refreshes.
// Intended to run on its own goroutine for the daemon's lifetime.
func (e *Engine) WatchModels(ctx context.Context) error {
	return e.mgr.Watch(ctx, func() {
		models, err := e.mgr.Discover()
		if err != nil {
			e.log.Warn().Err(err).Msg("models dir rescan failed")
			return
		}
		e.log.Info().Int("count", len(models)).Msg("models dir changed")
		e.pub.Publish(Event{Name: "models_changed", Fields: map[string]any{"count": len(models)}})
	})
}

// Status aggregates loaded models, cache occupancy, and hardware for the
// status surface.
func (e *Engine) Status() types.StatusResponse {
	loaded := e.reg.AllLoaded()
	out := types.StatusResponse{
		Loaded:         make([]types.LoadedModelStatus, 0, len(loaded)),
		MemoryBytes:    e.reg.MemoryUsage(),
		Cache:          e.lru.Stats(),
		Hardware:       hardware.Detect(),
		UptimeSeconds:  int64(time.Since(e.start).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, m := range loaded {
		st := types.LoadedModelStatus{ID: m.ID, Info: m.Info, Ops: m.SupportedOps()}
		if pm, ok := e.Metrics(m.ID); ok {
			cp := pm
			st.Metrics = &cp
		}
		out.Loaded = append(out.Loaded, st)
	}
	return out
}

// LoadedModels returns instances in load order.
func (e *Engine) LoadedModels() []*types.LoadedModel { return e.reg.AllLoaded() }

// Events returns retained lifecycle events when the publisher keeps them.
func (e *Engine) Events() []Event {
	if mp, ok := e.pub.(*MemoryPublisher); ok {
		return mp.Events()
	}
	return nil
}
