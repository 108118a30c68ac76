// Command vocalith is the entry point for the Vocalith speaker attribution
// and segment optimization engine. It reads raw-segment batches from JSON,
// runs the attribution/optimization pipeline per source, and writes optimized
// segments back out, optionally persisting embeddings and indexing results
// into PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocalith/vocalith/internal/attribution"
	"github.com/vocalith/vocalith/internal/config"
	"github.com/vocalith/vocalith/internal/health"
	"github.com/vocalith/vocalith/internal/observe"
	"github.com/vocalith/vocalith/internal/optimize"
	"github.com/vocalith/vocalith/internal/pipeline"
	"github.com/vocalith/vocalith/internal/resilience"
	"github.com/vocalith/vocalith/internal/triage"
	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
	"github.com/vocalith/vocalith/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "", "path to a raw-segment batch JSON file (one-shot mode)")
	outputPath := flag.String("output", "", "path for the optimized-segment JSON output (default: stdout)")
	watchDir := flag.String("watch-dir", "", "directory to poll for incoming batch files (service mode)")
	listenAddr := flag.String("listen", ":9090", "admin HTTP address for /metrics, /healthz and /readyz in service mode (empty to disable)")
	flag.Parse()

	if *inputPath == "" && *watchDir == "" {
		fmt.Fprintln(os.Stderr, "vocalith: either -input or -watch-dir is required")
		flag.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalith: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalith: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	slog.Info("vocalith starting",
		"config", *configPath,
		"log_level", cfg.Logging.Level,
		"workers", cfg.Workers,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocalith"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage (optional) ────────────────────────────────────────────────────
	var (
		pg    *postgres.Store
		cache store.EmbeddingCache
	)
	if cfg.Storage.PostgresDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.Storage.PostgresDSN, postgres.Dimensions{
			Voice: cfg.Storage.VoiceEmbeddingDimensions,
			Text:  cfg.Storage.TextEmbeddingDimensions,
		})
		if err != nil {
			// An unreachable store degrades to cache-less processing; it never
			// blocks a run.
			slog.Warn("postgres store unavailable; continuing without cache and index", "err", err)
			pg = nil
		} else {
			defer pg.Close()
			// The breaker bypasses a database that starts failing mid-run
			// instead of stalling every batch on it.
			cache = resilience.NewGuardedCache(pg, resilience.CircuitBreakerConfig{})
			slog.Info("postgres store connected",
				"voice_dims", cfg.Storage.VoiceEmbeddingDimensions,
				"text_dims", cfg.Storage.TextEmbeddingDimensions,
			)
		}
	}

	if *watchDir != "" {
		return runWatch(ctx, *configPath, cfg, pg, cache, *watchDir, *listenAddr)
	}
	return runOnce(ctx, cfg, pg, cache, *inputPath, *outputPath)
}

// runOnce processes a single batch file and writes results to outputPath or
// stdout.
func runOnce(ctx context.Context, cfg *config.Config, pg *postgres.Store, cache store.EmbeddingCache, inputPath, outputPath string) int {
	batch, err := readBatch(inputPath)
	if err != nil {
		slog.Error("failed to read input batch", "path", inputPath, "err", err)
		return 1
	}

	out, fatal := processBatch(ctx, cfg, pg, cache, batch)
	if err := writeOutput(outputPath, out); err != nil {
		slog.Error("failed to write output", "path", outputPath, "err", err)
		return 1
	}
	if fatal {
		return 1
	}
	return 0
}

// runWatch polls dir for new batch files and processes each one as it
// appears, writing results next to the input as <name>.out.json. A config
// watcher applies threshold recalibration between batches without a restart,
// and an admin HTTP server exposes metrics and health probes.
func runWatch(ctx context.Context, configPath string, cfg *config.Config, pg *postgres.Store, cache store.EmbeddingCache, dir, listenAddr string) int {
	w, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.EngineChanged {
			slog.Info("engine thresholds recalibrated", "fields", strings.Join(d.EngineFields, ","))
		}
		if d.StorageChanged {
			slog.Warn("storage configuration changed; restart required to apply")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer w.Stop()

	if listenAddr != "" {
		srv := startAdminServer(listenAddr, pg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("admin server shutdown error", "err", err)
			}
		}()
	}

	slog.Info("watching for batch files", "dir", dir)

	processed := make(map[string]bool)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping")
			return 0
		case <-ticker.C:
		}

		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			slog.Warn("glob failed", "dir", dir, "err", err)
			continue
		}
		for _, path := range matches {
			if processed[path] || strings.HasSuffix(path, ".out.json") {
				continue
			}
			processed[path] = true

			batch, err := readBatch(path)
			if err != nil {
				slog.Error("failed to read batch file; skipping", "path", path, "err", err)
				continue
			}
			out, _ := processBatch(ctx, w.Current(), pg, cache, batch)
			outPath := strings.TrimSuffix(path, ".json") + ".out.json"
			if err := writeOutput(outPath, out); err != nil {
				slog.Error("failed to write output", "path", outPath, "err", err)
			}
		}
	}
}

// startAdminServer serves Prometheus metrics and health probes. The database
// readiness check is registered only when a store is configured.
func startAdminServer(addr string, pg *postgres.Store) *http.Server {
	var checkers []health.Checker
	if pg != nil {
		checkers = append(checkers, health.DatabaseChecker(pg))
	}
	h := health.New(checkers...)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}
	go func() {
		slog.Info("admin server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server failed", "err", err)
		}
	}()
	return srv
}

// ── Batch I/O ─────────────────────────────────────────────────────────────────

// batchFile is the on-disk input format: one profile and one segment stream
// per source.
type batchFile struct {
	Sources []batchSource `json:"sources"`
}

type batchSource struct {
	ID       string               `json:"id"`
	Profile  attribution.Profile  `json:"profile"`
	Segments []segment.RawSegment `json:"segments"`
}

// outputFile is the on-disk output format.
type outputFile struct {
	Sources []outputSource `json:"sources"`
}

type outputSource struct {
	ID       string                     `json:"id"`
	Error    string                     `json:"error,omitempty"`
	Report   *pipeline.Report           `json:"report,omitempty"`
	Segments []segment.OptimizedSegment `json:"segments,omitempty"`
}

func readBatch(path string) (*batchFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	batch := &batchFile{}
	if err := json.NewDecoder(f).Decode(batch); err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	if len(batch.Sources) == 0 {
		return nil, fmt.Errorf("batch %q contains no sources", path)
	}
	return batch, nil
}

func writeOutput(path string, out *outputFile) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %q: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// ── Processing ────────────────────────────────────────────────────────────────

// processBatch runs the engine over every source in batch and returns the
// output document plus a flag reporting whether any source failed fatally.
func processBatch(ctx context.Context, cfg *config.Config, pg *postgres.Store, cache store.EmbeddingCache, batch *batchFile) (*outputFile, bool) {
	opts := []pipeline.Option{pipeline.WithMetrics(observe.DefaultMetrics())}
	if cache != nil {
		opts = append(opts, pipeline.WithCache(cache))
	}
	engine := pipeline.New(engineConfig(cfg.Engine), opts...)

	sources := make([]pipeline.Source, len(batch.Sources))
	for i, src := range batch.Sources {
		profile := src.Profile
		applyProfileDefaults(&profile, cfg.Engine)
		sources[i] = pipeline.Source{
			ID:       src.ID,
			Profile:  &profile,
			Segments: src.Segments,
		}
	}

	results := engine.ProcessBatch(ctx, sources, cfg.Workers)

	out := &outputFile{Sources: make([]outputSource, len(results))}
	anyFatal := false
	for i, res := range results {
		o := outputSource{ID: res.SourceID, Report: res.Report, Segments: res.Segments}
		if res.Err != nil {
			o.Error = res.Err.Error()
			anyFatal = true
			slog.Error("source failed", "source", res.SourceID, "err", res.Err)
		} else if pg != nil {
			persistSource(ctx, pg, cache, batch.Sources[i], res)
		}
		out.Sources[i] = o
	}
	return out, anyFatal
}

// persistSource writes the source's freshly extracted voice embeddings into
// the cache, renews its validity window, and indexes the optimized segments.
// Storage failures here are logged and never fail the run.
func persistSource(ctx context.Context, pg *postgres.Store, cache store.EmbeddingCache, src batchSource, res pipeline.Result) {
	cached := 0
	for _, raw := range src.Segments {
		if raw.VoiceEmbedding == nil {
			continue
		}
		rng := segment.Key(raw.Start, raw.End)
		if err := cache.PutEmbedding(ctx, src.ID, rng, raw.VoiceEmbedding); err != nil {
			slog.Warn("failed to cache embedding", "source", src.ID, "start", raw.Start, "err", err)
			continue
		}
		cached++
	}
	if err := cache.TouchSource(ctx, src.ID); err != nil {
		slog.Warn("failed to touch source", "source", src.ID, "err", err)
	}

	indexed := 0
	for _, seg := range res.Segments {
		if err := pg.IndexSegment(ctx, src.ID, seg); err != nil {
			slog.Warn("failed to index segment", "source", src.ID, "start", seg.Start, "err", err)
			continue
		}
		indexed++
	}
	slog.Info("source persisted", "source", src.ID, "embeddings_cached", cached, "segments_indexed", indexed)
}

// ── Config mapping ────────────────────────────────────────────────────────────

// engineConfig maps the YAML engine block onto the pipeline's stage configs.
func engineConfig(e config.EngineConfig) pipeline.Config {
	return pipeline.Config{
		Overlap: attribution.OverlapConfig{
			MinIntersection: float64(e.OverlapMinIntersectionMs) / 1000,
			Window:          float64(e.OverlapSplitWindowMs) / 1000,
		},
		SmoothingCeilingSeconds: e.SmoothingCeilingSeconds,
		Triage: triage.Config{
			Primary: triage.Thresholds{
				MinAvgLogProb:       e.Refinement.Primary.MinAvgLogProb,
				MaxCompressionRatio: e.Refinement.Primary.MaxCompressionRatio,
			},
			Guest: triage.Thresholds{
				MinAvgLogProb:       e.Refinement.Guest.MinAvgLogProb,
				MaxCompressionRatio: e.Refinement.Guest.MaxCompressionRatio,
			},
		},
		Optimizer: optimize.Config{
			MaxGapSeconds:           e.MaxGapSeconds,
			MaxMergeDurationSeconds: e.MaxMergeDurationSeconds,
			TargetMinChars:          e.TargetMinChars,
			TargetMaxChars:          e.TargetMaxChars,
			AlwaysMergeUnderChars:   e.AlwaysMergeUnderChars,
			SweepUnderChars:         e.SweepUnderChars,
			MinPunctuateChars:       optimize.DefaultConfig().MinPunctuateChars,
			FuzzyDedupe:             e.FuzzyDedupe,
			FuzzyDedupeThreshold:    e.FuzzyDedupeThreshold,
		},
		CacheMaxAgeDays: e.CacheMaxAgeDays,
	}
}

// applyProfileDefaults fills classifier thresholds a profile omits with the
// configured defaults.
func applyProfileDefaults(p *attribution.Profile, e config.EngineConfig) {
	if p.ThresholdHi == 0 {
		p.ThresholdHi = e.ThresholdHi
	}
	if p.ThresholdLo == 0 {
		p.ThresholdLo = e.ThresholdLo
	}
	if p.MinRuns == 0 {
		p.MinRuns = e.MinRuns
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
