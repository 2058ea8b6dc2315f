package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"idgaf/internal/config"
	"idgaf/internal/manager"
)

// cliOptions are the persistent flags shared by every subcommand.
type cliOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

func buildRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "idgaf",
		Short:         "On-device model runtime daemon",
		Long:          "idgaf loads gguf/onnx/tflite/coreml models behind one HTTP API with byte-bounded caching and streamed generation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (.yaml/.json/.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write logs to this size-rotated file")

	root.AddCommand(buildServeCmd(opts))
	root.AddCommand(buildModelsCmd(opts))
	root.AddCommand(buildResolveCmd(opts))
	root.AddCommand(buildChecksumCmd(opts))
	return root
}

// loadConfig merges the optional config file under the CLI flags; flags win.
func loadConfig(opts *cliOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	return cfg, nil
}

// newLogger builds the process logger: console always, plus a rotated file
// sink when configured.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var sink io.Writer = console
	if cfg.LogFile != "" {
		maxSize := cfg.LogMaxSizeMB
		if maxSize <= 0 {
			maxSize = 128
		}
		maxFiles := cfg.LogMaxFiles
		if maxFiles <= 0 {
			maxFiles = 3
		}
		sink = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxSize,
			MaxBackups: maxFiles,
		})
	}
	return zerolog.New(sink).Level(level).With().Timestamp().Logger()
}

func buildModelsCmd(opts *cliOptions) *cobra.Command {
	var modelsDir string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model files discovered in the models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := manager.New(modelsDir)
			if err != nil {
				return err
			}
			models, err := mgr.Discover()
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no models found in", mgr.Dir())
				return nil
			}
			for _, m := range models {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-8s %-10s %12d\n", m.Name, m.Format, m.Type, m.Size)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelsDir, "models-dir", defaultModelsDir(), "directory to scan for model files")
	return cmd
}

func buildResolveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Print the resolved metadata for a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := manager.New(defaultModelsDir())
			if err != nil {
				return err
			}
			info, err := mgr.Resolve(args[0])
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("unrecognized model format: %s", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func buildChecksumCmd(opts *cliOptions) *cobra.Command {
	var expect string
	cmd := &cobra.Command{
		Use:   "checksum <path>",
		Short: "Compute (and optionally verify) a model file's SHA-256",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expect != "" {
				if err := manager.Verify(args[0], expect); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			sum, err := manager.Checksum(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "expected SHA-256 hex digest to verify against")
	return cmd
}

func defaultModelsDir() string {
	if v := os.Getenv("IDGAF_MODELS_DIR"); v != "" {
		return v
	}
	return "~/models"
}
