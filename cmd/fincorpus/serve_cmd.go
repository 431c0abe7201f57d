package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize/vault"
	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
	"github.com/Veridata-Labs/fincorpus/core/pkg/config"
	"github.com/Veridata-Labs/fincorpus/core/pkg/contradiction"
	"github.com/Veridata-Labs/fincorpus/core/pkg/fetcher"
	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
	"github.com/Veridata-Labs/fincorpus/core/pkg/lifecycle"
	"github.com/Veridata-Labs/fincorpus/core/pkg/observability"
	"github.com/Veridata-Labs/fincorpus/core/pkg/pipeline"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// stack bundles the wired service components and their teardown.
type stack struct {
	chain    *auditchain.Chain
	manager  *lifecycle.Manager
	pipeline *pipeline.Pipeline
	detector *contradiction.Detector
	obs      *observability.Provider
	closers  []func() error
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildStack wires the pipeline from configuration. File-backed stores are
// used when configured, in-memory otherwise.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	s := &stack{}

	var chainStore auditchain.Store
	if cfg.AuditDB != "" {
		sqlite, err := auditchain.NewSQLiteStore(cfg.AuditDB)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		s.closers = append(s.closers, sqlite.Close)
		chainStore = sqlite
	} else {
		chainStore = auditchain.NewMemoryStore()
	}
	s.chain = auditchain.New(chainStore)

	var backend vault.Backend
	if cfg.Anonymization.VaultPath != "" {
		sqlite, err := vault.NewSQLiteBackend(cfg.Anonymization.VaultPath)
		if err != nil {
			return nil, fmt.Errorf("vault backend: %w", err)
		}
		s.closers = append(s.closers, sqlite.Close)
		backend = sqlite
	} else {
		backend = vault.NewMemoryBackend()
	}
	engine := anonymize.New([]byte(cfg.Anonymization.TokenizationSecret),
		vault.New(backend, []byte(cfg.Anonymization.VaultKey), nil))

	var recordStore lifecycle.Store
	if cfg.DatabaseURL != "" {
		pg, err := lifecycle.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("record store: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		recordStore = pg
	} else {
		recordStore = lifecycle.NewMemoryStore()
	}

	opts := []lifecycle.Option{
		lifecycle.WithAnonymizationLevel(anonymize.Level(cfg.Anonymization.Level)),
	}
	if cfg.ApprovalPolicy != "" {
		policy, err := lifecycle.CompileApprovalPolicy(cfg.ApprovalPolicy)
		if err != nil {
			return nil, fmt.Errorf("approval policy: %w", err)
		}
		opts = append(opts, lifecycle.WithApprovalPolicy(policy))
	}
	if cfg.SchemaVersion != "" {
		version, err := semver.NewVersion(cfg.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("schema version: %w", err)
		}
		opts = append(opts, lifecycle.WithSchemaVersion(version))
	}
	s.manager = lifecycle.NewManager(recordStore, s.chain, engine, opts...)

	fetchOpts := fetcher.Options{
		Identification:    cfg.Fetcher.Identification,
		RequestsPerSecond: cfg.Fetcher.RateLimitPerSecond,
		MaxAttempts:       cfg.Fetcher.MaxRetries,
	}
	if cfg.Fetcher.RedisAddr != "" {
		shared := fetcher.NewSharedBucket(cfg.Fetcher.RedisAddr, "", 0, cfg.Fetcher.RateLimitPerSecond)
		s.closers = append(s.closers, shared.Close)
		fetchOpts.SharedBucket = shared
	}
	fc, err := fetcher.New(fetchOpts)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Enabled {
		provider, err := observability.New(ctx, &observability.Config{
			ServiceName:    "fincorpus-core",
			ServiceVersion: "1.0.0",
			OTLPEndpoint:   cfg.Telemetry.Endpoint,
			SampleRate:     cfg.Telemetry.SampleRate,
			BatchTimeout:   5 * time.Second,
			Enabled:        true,
			Insecure:       true,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		s.obs = provider
		s.closers = append(s.closers, func() error { return provider.Shutdown(context.Background()) })
	}

	var pipelineOpts []pipeline.Option
	if s.obs != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithObservability(s.obs))
	}
	s.pipeline = pipeline.New(fc, s.manager, pipeline.DefaultConfig(), pipelineOpts...)

	var embedder contradiction.Embedder
	if cfg.Embeddings.Endpoint != "" || cfg.Embeddings.APIKey != "" {
		embedder = contradiction.NewHTTPEmbedder(cfg.Embeddings.Endpoint, cfg.Embeddings.APIKey, cfg.Embeddings.Model)
	} else {
		embedder = &contradiction.BagEmbedder{}
	}
	s.detector = contradiction.NewDetector(embedder)

	return s, nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Load()
	if path != "" {
		return config.LoadFile(path, cfg)
	}
	return cfg, nil
}

func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// runServeCmd runs the ingestion service: the staged pipeline behind a small
// HTTP surface (health, ingest, consistency scoring, stats).
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "Path to YAML configuration file")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cfg.ApplyRetention()
	configureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer s.close()

	if err := s.pipeline.Start(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger := slog.Default().With("component", "serve")
	go func() {
		for outcome := range s.pipeline.Outcomes() {
			if outcome.Err != nil {
				logger.Warn("job failed", "filing_id", outcome.FilingID, "stage", outcome.Stage, "err", outcome.Err)
				continue
			}
			logger.Info("job finished",
				"filing_id", outcome.FilingID, "record_id", outcome.RecordID,
				"ok", outcome.Result.OK, "reason", outcome.Result.Reason)
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServeMux(s),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.pipeline.Close()
	}()

	logger.Info("fincorpus serving", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// ingestRequest is the POST /ingest body.
type ingestRequest struct {
	Filing        filing.Filing `json:"filing"`
	DocumentURL   string        `json:"document_url"`
	ContentType   string        `json:"content_type"`
	StatementType string        `json:"statement_type"`
	Source        string        `json:"source"`
	CompanyName   string        `json:"company_name"`
	TenantID      string        `json:"tenant_id"`
	UserID        string        `json:"user_id"`
}

func newServeMux(s *stack) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.pipeline.Stats())
	})

	mux.HandleFunc("POST /ingest", func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		job := pipeline.Job{
			Filing:        &req.Filing,
			DocumentURL:   req.DocumentURL,
			ContentType:   req.ContentType,
			StatementType: statement.Type(req.StatementType),
			Source:        req.Source,
			CompanyName:   req.CompanyName,
			TenantID:      req.TenantID,
			UserID:        req.UserID,
		}
		if err := s.pipeline.Submit(r.Context(), job); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	})

	mux.HandleFunc("POST /score", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		report, err := s.detector.Analyze(r.Context(), req.Text)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("GET /models/{id}/lineage", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.manager.LineageOf(r.Context(), r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
