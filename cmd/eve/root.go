package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andrew/eve-companion/pkg/companion"
	"github.com/andrew/eve-companion/pkg/config"
	"github.com/andrew/eve-companion/pkg/llm"
	"github.com/andrew/eve-companion/pkg/logging"
	"github.com/andrew/eve-companion/pkg/memory"
	"github.com/andrew/eve-companion/pkg/orchestrator"
	"github.com/andrew/eve-companion/pkg/store"
	"github.com/andrew/eve-companion/pkg/visual"
)

var (
	// Global flags
	configPath string
	dataDir    string
	backend    string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "eve",
	Short: "EVE - a local companion chat on top of Ollama",
	Long: `EVE keeps one ongoing conversation with a local model served by Ollama,
remembers it across restarts, and can send pictures through a Gradio image app.

Run without arguments to start chatting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if backend != "" {
			cfg.Storage.Backend = backend
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Debug: debug})
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the conversation database")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: bolt, sqlite or memory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(chatCmd, serveCmd, memoryCmd, settingsCmd, backupCmd)
}

// app bundles the wired components for one command invocation
type app struct {
	store *store.Store
	svc   *companion.Service
}

// openApp wires store, clients and service, then hydrates the conversation
func openApp(ctx context.Context, log *zap.Logger) (*app, error) {
	st, err := store.Open(ctx, store.Config{Type: cfg.Storage.Backend, Path: cfg.StoragePath()}, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	completer := llm.NewOllamaClient(cfg.GetCompletionTimeout(), log.Named("llm"))
	synthesizer := visual.NewGradioClient(visual.Config{
		APIName:        cfg.Image.APIName,
		MaxPromptChars: cfg.Image.MaxPromptChars,
	}, cfg.GetImageTimeout(), log.Named("visual"))

	svc := companion.NewService(st,
		orchestrator.New(completer, synthesizer, log.Named("orchestrator")),
		memory.NewConsolidator(completer, log.Named("memory")),
		log.Named("companion"))
	svc.Hydrate(ctx)

	return &app{store: st, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

// quietLogger keeps info logs off an interactive terminal unless --debug is set
func quietLogger() *zap.Logger {
	if debug || !logger.Core().Enabled(zapcore.InfoLevel) {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
}
