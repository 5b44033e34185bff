package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"modeld/internal/common/fsutil"
	"modeld/internal/config"
	"modeld/internal/httpapi"
	"modeld/internal/registry"
	"modeld/pkg/engine"
	"modeld/pkg/types"
)

// serveFlags collects buildServeCmd's flag values before they're assembled
// into types.EngineSettings — mirroring the teacher's original main.go
// flag.String/flag.Int locals, just grouped into one struct now that
// there are enough of them to need one.
type serveFlags struct {
	addr         string
	modelPath    string
	backend      string
	maxNumTokens int
	cacheDir     string
	maxLoraSlots int

	samplerType        string
	samplerK           int
	samplerP           float64
	samplerTemperature float64
	samplerSeed        int64

	maxBodyBytes     int64
	operationTimeout int64

	modelsDir string
	cfgPath   string

	corsEnabled bool
	corsOrigins string
	corsMethods string
	corsHeaders string

	logLevel string
}

func buildServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build one Engine from the given settings and serve its Sessions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f, cmd.Flags())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.cfgPath, "config", "", "Optional settings file (.yaml/.json/.toml); values fill in flags not given explicitly")
	fl.StringVar(&f.addr, "addr", envDefault("MODELD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	fl.StringVar(&f.modelPath, "model-path", envDefault("MODELD_MODEL_PATH", ""), "Path to the GGUF model file")
	fl.StringVar(&f.backend, "backend", envDefault("MODELD_BACKEND", string(types.BackendCPU)), "Compute backend: cpu|gpu|gpu_artisan")
	fl.IntVar(&f.maxNumTokens, "max-num-tokens", 2048, "Context window size passed to the executor")
	fl.StringVar(&f.cacheDir, "cache-dir", envDefault("MODELD_CACHE_DIR", ""), "Directory for the Badger-backed checkpoint store (empty disables checkpointing)")
	fl.StringVar(&f.modelsDir, "models-dir", envDefault("MODELD_MODELS_DIR", ""), "Directory to scan for a *.gguf model when --model-path is empty; also watched for advisory change notices")
	fl.IntVar(&f.maxLoraSlots, "max-lora-slots", 4, "Max distinct LoRA adapters kept loaded before LRU eviction (<=0 unbounded)")

	fl.StringVar(&f.samplerType, "sampler-type", string(types.SamplerGreedy), "Default sampler: greedy|topk|topp")
	fl.IntVar(&f.samplerK, "sampler-k", 0, "Default top-k width")
	fl.Float64Var(&f.samplerP, "sampler-p", 0, "Default top-p mass")
	fl.Float64Var(&f.samplerTemperature, "sampler-temperature", 0, "Default sampling temperature (0 = argmax)")
	fl.Int64Var(&f.samplerSeed, "sampler-seed", 0, "Default sampler RNG seed")

	fl.Int64Var(&f.maxBodyBytes, "max-body-bytes", 1<<20, "Max accepted JSON request body size")
	fl.Int64Var(&f.operationTimeout, "operation-timeout-seconds", 0, "Extra deadline on prefill/decode/messages/score requests (0 disables)")

	fl.BoolVar(&f.corsEnabled, "cors-enabled", false, "Enable CORS middleware")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	fl.StringVar(&f.corsMethods, "cors-methods", "", "Comma-separated allowed CORS methods")
	fl.StringVar(&f.corsHeaders, "cors-headers", "", "Comma-separated allowed CORS headers")

	fl.StringVar(&f.logLevel, "log-level", envDefault("MODELD_LOG_LEVEL", "info"), "zerolog level: debug|info|warn|error|off")

	return cmd
}

func runServe(f *serveFlags, flags *pflag.FlagSet) error {
	if f.cfgPath != "" {
		cfg, err := config.Load(f.cfgPath)
		if err != nil {
			return fmt.Errorf("serve: --config: %w", err)
		}
		applyConfigFile(f, flags, cfg)
	}

	logger := newLogger(f.logLevel)

	if f.modelsDir != "" {
		expanded, err := fsutil.ExpandHome(f.modelsDir)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		f.modelsDir = expanded
	}
	if f.modelPath == "" && f.modelsDir != "" {
		picked, err := pickModelFromDir(f.modelsDir)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		logger.Info().Str("models_dir", f.modelsDir).Str("model_path", picked).Msg("modeld: picked model from --models-dir")
		f.modelPath = picked
	}
	if f.modelPath == "" {
		return fmt.Errorf("serve: --model-path is required (or --models-dir with at least one *.gguf file)")
	}

	modelPath, err := fsutil.ExpandHome(f.modelPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	f.modelPath = modelPath
	if f.cacheDir != "" {
		cacheDir, err := fsutil.ExpandHome(f.cacheDir)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		f.cacheDir = cacheDir
	}

	settings := types.EngineSettings{
		Model:        types.ModelAssets{ModelPath: f.modelPath},
		MainExecutor: types.MainExecutorSettings{Backend: types.Backend(f.backend), MaxNumTokens: f.maxNumTokens, CacheDir: f.cacheDir},
		SamplerParams: &types.SamplerParams{
			Type:        types.SamplerType(f.samplerType),
			K:           f.samplerK,
			P:           f.samplerP,
			Temperature: f.samplerTemperature,
			Seed:        f.samplerSeed,
		},
	}

	eng, err := engine.Create(settings, engine.WithLogger(logger), engine.WithMaxLoraSlots(f.maxLoraSlots))
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer eng.Close()

	httpapi.SetLogger(logger)
	httpapi.SetMaxBodyBytes(f.maxBodyBytes)
	httpapi.SetOperationTimeoutSeconds(f.operationTimeout)
	httpapi.SetCORSOptions(f.corsEnabled, splitCSV(f.corsOrigins), splitCSV(f.corsMethods), splitCSV(f.corsHeaders))

	// No TemplateApplier is wired here: spec §1 leaves tokenization and
	// chat templating out of scope, so /v1/sessions/{id}/messages answers
	// 501 until an embedder-supplied applier is plugged in at this call.
	mux := httpapi.NewMux(eng, nil)
	srv := &http.Server{Addr: f.addr, Handler: mux}

	// The Engine is immutable once engine.Create returns (spec §2: one
	// Engine serves one model for its lifetime), so a models-dir watcher
	// can only ever be advisory here — it logs that the directory changed,
	// it does not hot-swap the running model.
	if f.modelsDir != "" {
		watcher, err := registry.NewWatcher(f.modelsDir, func(assets []types.ModelAssets) {
			logger.Info().Int("count", len(assets)).Str("dir", f.modelsDir).Msg("modeld: models-dir changed (restart to pick up a new model)")
		})
		if err != nil {
			logger.Warn().Err(err).Str("dir", f.modelsDir).Msg("modeld: models-dir watch failed")
		} else {
			defer watcher.Close()
		}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", f.addr).Str("model_path", f.modelPath).Msg("modeld: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("modeld: shutting down")
	case err := <-errCh:
		baseCancel()
		return fmt.Errorf("serve: %w", err)
	}

	baseCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("modeld: graceful shutdown error")
	}
	return nil
}

// applyConfigFile fills in any serveFlags field whose flag wasn't given
// explicitly on the command line with the matching value from cfg, so a
// config file acts as a base layer under (never over) explicit flags.
func applyConfigFile(f *serveFlags, flags *pflag.FlagSet, cfg config.Config) {
	if cfg.Addr != "" && !flags.Changed("addr") {
		f.addr = cfg.Addr
	}
	if cfg.ModelPath != "" && !flags.Changed("model-path") {
		f.modelPath = cfg.ModelPath
	}
	if cfg.ModelsDir != "" && !flags.Changed("models-dir") {
		f.modelsDir = cfg.ModelsDir
	}
	if cfg.Backend != "" && !flags.Changed("backend") {
		f.backend = cfg.Backend
	}
	if cfg.CacheDir != "" && !flags.Changed("cache-dir") {
		f.cacheDir = cfg.CacheDir
	}
	if cfg.MaxLoraSlots != 0 && !flags.Changed("max-lora-slots") {
		f.maxLoraSlots = cfg.MaxLoraSlots
	}
	if cfg.LogLevel != "" && !flags.Changed("log-level") {
		f.logLevel = cfg.LogLevel
	}
}

// pickModelFromDir scans dir via registry.LoadDir and returns the first
// discovered *.gguf path, so --models-dir can stand in for --model-path
// the way the teacher's original single-model-directory main.go did.
func pickModelFromDir(dir string) (string, error) {
	expanded, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	assets, err := registry.LoadDir(expanded)
	if err != nil {
		return "", fmt.Errorf("scan models-dir: %w", err)
	}
	if len(assets) == 0 {
		return "", fmt.Errorf("no *.gguf files found in %s", dir)
	}
	return assets[0].ModelPath, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
