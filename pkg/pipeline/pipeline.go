// Package pipeline orchestrates corpus ingestion as bounded-channel worker
// stages: fetch, parse+normalize, and lifecycle processing. Stage boundaries
// are queue boundaries; backpressure propagates through the channels. The
// audit chain and per-record transitions serialize downstream, so stage
// workers stay free of shared mutable state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
	"github.com/Veridata-Labs/fincorpus/core/pkg/fetcher"
	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
	"github.com/Veridata-Labs/fincorpus/core/pkg/lifecycle"
	"github.com/Veridata-Labs/fincorpus/core/pkg/observability"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// Job describes one filing document to ingest.
type Job struct {
	Filing        *filing.Filing
	DocumentURL   string
	ContentType   string
	StatementType statement.Type
	Source        string
	CompanyName   string
	TenantID      string
	UserID        string
	Metadata      map[string]string
}

// Outcome reports how one job ended. RecordID is set once the statement was
// ingested; Stage names the stage that produced the terminal result.
type Outcome struct {
	FilingID string
	RecordID string
	Stage    string
	Result   lifecycle.Result
	Err      error
}

const (
	StageFetch   = "fetch"
	StageParse   = "parse"
	StageIngest  = "ingest"
	StageProcess = "process"
)

// Config sizes the worker stages.
type Config struct {
	FetchWorkers   int // parallel fetchers (default 4)
	ProcessWorkers int // parallel parse and lifecycle workers (default 4)
	QueueDepth     int // per-stage channel buffer (default 16)
}

// DefaultConfig returns sensible stage sizes. The fetch stage parallelism is
// bounded by the shared rate limiter anyway; the default keeps a few requests
// in flight while responses stream in.
func DefaultConfig() Config {
	return Config{
		FetchWorkers:   4,
		ProcessWorkers: 4,
		QueueDepth:     16,
	}
}

// Stats is a snapshot of pipeline throughput counters.
type Stats struct {
	Fetched   int64 `json:"fetched"`
	Parsed    int64 `json:"parsed"`
	Ingested  int64 `json:"ingested"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pipeline runs jobs through the staged workers. Construct with New, call
// Start once, feed jobs with Submit, then Close and drain Outcomes.
type Pipeline struct {
	fetcher *fetcher.Client
	manager *lifecycle.Manager
	obs     *observability.Provider
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	stats   Stats

	jobs     chan Job
	outcomes chan Outcome
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithObservability attaches a telemetry provider; each stage records an
// operation span and duration per job.
func WithObservability(obs *observability.Provider) Option {
	return func(p *Pipeline) { p.obs = obs }
}

func New(fc *fetcher.Client, manager *lifecycle.Manager, config Config, opts ...Option) *Pipeline {
	if config.FetchWorkers <= 0 {
		config.FetchWorkers = DefaultConfig().FetchWorkers
	}
	if config.ProcessWorkers <= 0 {
		config.ProcessWorkers = DefaultConfig().ProcessWorkers
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultConfig().QueueDepth
	}
	p := &Pipeline{
		fetcher:  fc,
		manager:  manager,
		config:   config,
		logger:   slog.Default().With("component", "pipeline"),
		jobs:     make(chan Job, config.QueueDepth),
		outcomes: make(chan Outcome, config.QueueDepth),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type fetched struct {
	job  Job
	body []byte
}

type normalized struct {
	job Job
	doc map[string]interface{}
}

// Start launches the stage workers. The outcomes channel closes after Close
// has been called and every submitted job has drained through.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pipeline already started")
	}
	p.started = true

	fetchedCh := make(chan fetched, p.config.QueueDepth)
	docCh := make(chan normalized, p.config.QueueDepth)

	var fetchWG sync.WaitGroup
	for i := 0; i < p.config.FetchWorkers; i++ {
		fetchWG.Add(1)
		go func() {
			defer fetchWG.Done()
			p.fetchWorker(ctx, fetchedCh)
		}()
	}

	var parseWG sync.WaitGroup
	for i := 0; i < p.config.ProcessWorkers; i++ {
		parseWG.Add(1)
		go func() {
			defer parseWG.Done()
			p.parseWorker(ctx, fetchedCh, docCh)
		}()
	}

	var processWG sync.WaitGroup
	for i := 0; i < p.config.ProcessWorkers; i++ {
		processWG.Add(1)
		go func() {
			defer processWG.Done()
			p.processWorker(ctx, docCh)
		}()
	}

	go func() {
		fetchWG.Wait()
		close(fetchedCh)
		parseWG.Wait()
		close(docCh)
		processWG.Wait()
		close(p.outcomes)
	}()
	return nil
}

// Submit enqueues a job, blocking when the intake queue is full. Returns an
// error when the pipeline is closed or the context ends first.
func (p *Pipeline) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("pipeline closed")
	}
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return errkind.Wrap(errkind.ErrCancelled, "submit: %v", ctx.Err())
	}
}

// Close stops intake. In-flight jobs drain; Outcomes closes when they have.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Outcomes streams terminal results, one per submitted job.
func (p *Pipeline) Outcomes() <-chan Outcome {
	return p.outcomes
}

// Stats returns a snapshot of the throughput counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run is the batch convenience: start, submit everything, close, collect.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	go func() {
		for _, job := range jobs {
			if err := p.Submit(ctx, job); err != nil {
				break
			}
		}
		p.Close()
	}()

	outcomes := make([]Outcome, 0, len(jobs))
	for outcome := range p.outcomes {
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (p *Pipeline) fetchWorker(ctx context.Context, out chan<- fetched) {
	for job := range p.jobs {
		done := p.track(ctx, "pipeline.fetch")
		res, err := p.fetcher.Fetch(ctx, job.DocumentURL, nil)
		done(err)
		if err != nil {
			p.fail(job, StageFetch, err)
			continue
		}
		p.count(func(s *Stats) { s.Fetched++ })
		out <- fetched{job: job, body: res.Body}
	}
}

func (p *Pipeline) parseWorker(ctx context.Context, in <-chan fetched, out chan<- normalized) {
	for item := range in {
		if ctx.Err() != nil {
			p.fail(item.job, StageParse, errkind.Wrap(errkind.ErrCancelled, "%v", ctx.Err()))
			continue
		}
		done := p.track(ctx, "pipeline.parse")
		result, err := filing.ParseDocument(item.job.Filing, item.body, item.job.ContentType)
		if err != nil {
			done(err)
			p.fail(item.job, StageParse, errkind.Wrap(errkind.ErrValidation, "parse: %v", err))
			continue
		}
		stmt := statement.Normalize(item.job.Filing, result.Facts, item.job.StatementType)
		done(nil)
		p.count(func(s *Stats) { s.Parsed++ })
		out <- normalized{job: item.job, doc: docFromStatement(stmt, item.job)}
	}
}

func (p *Pipeline) processWorker(ctx context.Context, in <-chan normalized) {
	for item := range in {
		done := p.track(ctx, "pipeline.process")

		ingested := p.manager.IngestStatement(ctx, item.doc, item.job.Source, item.job.Metadata, item.job.TenantID, item.job.UserID)
		if !ingested.OK {
			done(fmt.Errorf("ingest refused: %s", ingested.Reason))
			p.count(func(s *Stats) { s.Failed++ })
			p.emit(Outcome{FilingID: filingID(item.job), Stage: StageIngest, Result: ingested})
			continue
		}
		p.count(func(s *Stats) { s.Ingested++ })

		// ProcessRecord owns cancellation from here: a context cancelled
		// mid-flight rejects the record with reason CANCELLED and audits it.
		processed := p.manager.ProcessRecord(ctx, ingested.RecordID)
		if processed.OK {
			done(nil)
			p.count(func(s *Stats) { s.Processed++ })
		} else {
			done(fmt.Errorf("processing failed: %s", processed.Reason))
			p.count(func(s *Stats) { s.Failed++ })
		}
		p.emit(Outcome{
			FilingID: filingID(item.job),
			RecordID: ingested.RecordID,
			Stage:    StageProcess,
			Result:   processed,
		})
	}
}

func (p *Pipeline) fail(job Job, stage string, err error) {
	p.count(func(s *Stats) { s.Failed++ })
	p.logger.Warn("pipeline stage failed",
		"stage", stage, "filing_id", filingID(job), "err", err)
	p.emit(Outcome{FilingID: filingID(job), Stage: stage, Err: err})
}

func (p *Pipeline) emit(outcome Outcome) {
	p.outcomes <- outcome
}

func (p *Pipeline) count(update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}

// track starts a telemetry operation when a provider is attached. The
// returned func is always safe to call.
func (p *Pipeline) track(ctx context.Context, name string) func(error) {
	if p.obs == nil {
		return func(error) {}
	}
	_, done := p.obs.TrackOperation(ctx, name)
	return done
}

func filingID(job Job) string {
	if job.Filing != nil {
		return job.Filing.FilingID
	}
	return job.DocumentURL
}

// docFromStatement flattens a normalized statement into the ingest document
// shape: canonical decimal strings under "fields", statement metadata at the
// top level.
func docFromStatement(s *statement.Statement, job Job) map[string]interface{} {
	fields := make(map[string]interface{}, len(s.Fields)+1)
	for name, value := range s.Fields {
		fields[name] = value.String()
	}
	if job.CompanyName != "" {
		fields["company_name"] = job.CompanyName
	}
	doc := map[string]interface{}{
		"statement_type": string(s.Type),
		"fields":         fields,
	}
	if s.PeriodEnd != "" {
		doc["period_end"] = s.PeriodEnd
	}
	if s.PeriodStart != "" {
		doc["period_start"] = s.PeriodStart
	}
	if s.Currency != "" {
		doc["currency"] = s.Currency
	}
	if s.FilingID != "" {
		doc["filing_id"] = s.FilingID
	}
	return doc
}
