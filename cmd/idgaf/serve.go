package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"idgaf/internal/adapters/gguf"
	"idgaf/internal/adapters/onnx"
	"idgaf/internal/config"
	"idgaf/internal/engine"
	"idgaf/internal/httpapi"
	"idgaf/pkg/types"
)

func buildServeCmd(opts *cliOptions) *cobra.Command {
	var (
		addr       string
		modelsDir  string
		cacheMB    int
		maxPending int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the model runtime daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			// Flags override file values when set explicitly.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("models-dir") || cfg.ModelsDir == "" {
				cfg.ModelsDir = modelsDir
			}
			if cmd.Flags().Changed("cache-mb") || cfg.CacheMB == 0 {
				cfg.CacheMB = cacheMB
			}
			if cmd.Flags().Changed("max-pending") || cfg.MaxPending == 0 {
				cfg.MaxPending = maxPending
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&modelsDir, "models-dir", defaultModelsDir(), "directory to scan for model files")
	cmd.Flags().IntVar(&cacheMB, "cache-mb", 8192, "model cache capacity in MiB")
	cmd.Flags().IntVar(&maxPending, "max-pending", 4, "max concurrent inference calls before queueing")
	return cmd
}

func serve(cfg config.Config) error {
	log := newLogger(cfg)

	eng, err := engine.New(engine.Config{
		ModelsDir:     cfg.ModelsDir,
		CacheBytes:    int64(cfg.CacheMB) << 20,
		MaxPending:    cfg.MaxPending,
		TokenTimeout:  time.Duration(cfg.TokenTimeoutSec) * time.Second,
		CacheMetaPath: cfg.CacheMetaPath,
		Logger:        log,
		Publisher:     engine.NewMemoryPublisher(0),
	})
	if err != nil {
		return err
	}
	eng.RegisterAdapter(gguf.New())
	eng.RegisterAdapter(onnx.New())

	baseCtx, stopBase := context.WithCancel(context.Background())
	defer stopBase()

	for _, path := range cfg.Preload {
		if _, err := eng.LoadModel(baseCtx, path, types.LoadOptions{}); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("preload failed")
		}
	}

	go func() {
		if err := eng.WatchModels(baseCtx); err != nil && baseCtx.Err() == nil {
			log.Warn().Err(err).Msg("models dir watch stopped")
		}
	}()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(eng)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("idgaf listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	eng.Shutdown(ctx)
	return nil
}
