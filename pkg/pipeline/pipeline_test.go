package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize/vault"
	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
	"github.com/Veridata-Labs/fincorpus/core/pkg/fetcher"
	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
	"github.com/Veridata-Labs/fincorpus/core/pkg/lifecycle"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// companyFactsJSON is a complete balanced filing in the XBRL company-facts
// JSON shape: assets 1000 = liabilities 600 + equity 400.
const companyFactsJSON = `{
	"facts": {
		"us-gaap": {
			"Assets": {"units": {"USD": [{"end": "2024-12-31", "val": 1000}]}},
			"AssetsCurrent": {"units": {"USD": [{"end": "2024-12-31", "val": 400}]}},
			"CashAndCashEquivalentsAtCarryingValue": {"units": {"USD": [{"end": "2024-12-31", "val": 150}]}},
			"AccountsReceivableNetCurrent": {"units": {"USD": [{"end": "2024-12-31", "val": 120}]}},
			"InventoryNet": {"units": {"USD": [{"end": "2024-12-31", "val": 130}]}},
			"Liabilities": {"units": {"USD": [{"end": "2024-12-31", "val": 600}]}},
			"LiabilitiesCurrent": {"units": {"USD": [{"end": "2024-12-31", "val": 250}]}},
			"AccountsPayableCurrent": {"units": {"USD": [{"end": "2024-12-31", "val": 110}]}},
			"LongTermDebtNoncurrent": {"units": {"USD": [{"end": "2024-12-31", "val": 350}]}},
			"StockholdersEquity": {"units": {"USD": [{"end": "2024-12-31", "val": 400}]}},
			"RetainedEarningsAccumulatedDeficit": {"units": {"USD": [{"end": "2024-12-31", "val": 180}]}}
		}
	}
}`

func testPipeline(t *testing.T, server *httptest.Server) (*Pipeline, *lifecycle.MemoryStore, *auditchain.Chain) {
	t.Helper()
	store := lifecycle.NewMemoryStore()
	chain := auditchain.New(auditchain.NewMemoryStore())
	engine := anonymize.New([]byte("test-secret"),
		vault.New(vault.NewMemoryBackend(), []byte("vault-key"), nil))
	manager := lifecycle.NewManager(store, chain, engine)

	fc, err := fetcher.New(fetcher.Options{
		Identification: "fincorpus-test admin@example.com",
		MaxAttempts:    1,
	})
	require.NoError(t, err)

	return New(fc, manager, Config{FetchWorkers: 2, ProcessWorkers: 2, QueueDepth: 4}), store, chain
}

func testJob(url string) Job {
	return Job{
		Filing: &filing.Filing{
			FilingID:  "f-1",
			IssuerID:  "0000123456",
			FormType:  "10-K",
			PeriodEnd: "2024-12-31",
		},
		DocumentURL:   url,
		ContentType:   "application/json",
		StatementType: statement.TypeBalanceSheet,
		Source:        "edgar",
		CompanyName:   "Acme Inc",
		TenantID:      "tenant-1",
		UserID:        "uploader",
	}
}

func TestRunEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(companyFactsJSON)) //nolint:errcheck
	}))
	defer server.Close()

	p, store, chain := testPipeline(t, server)
	outcomes, err := p.Run(context.Background(), []Job{testJob(server.URL)})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	outcome := outcomes[0]
	require.NoError(t, outcome.Err)
	require.Equal(t, StageProcess, outcome.Stage)
	require.True(t, outcome.Result.OK, "reason: %s", outcome.Result.Reason)
	require.NotEmpty(t, outcome.RecordID)

	record, err := store.GetRecord(context.Background(), outcome.RecordID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusValidated, record.Status)
	require.NotNil(t, record.Quality)
	require.NotNil(t, record.AnonymizedStatement)

	// ingest and the state transitions all landed on the chain
	head, _, ok, err := chain.Head(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, chain.Verify(context.Background(), 0, head))

	stats := p.Stats()
	require.Equal(t, int64(1), stats.Fetched)
	require.Equal(t, int64(1), stats.Parsed)
	require.Equal(t, int64(1), stats.Ingested)
	require.Equal(t, int64(1), stats.Processed)
	require.Zero(t, stats.Failed)
}

func TestFetchFailureSurfacesAsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	p, _, _ := testPipeline(t, server)
	outcomes, err := p.Run(context.Background(), []Job{testJob(server.URL)})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, StageFetch, outcomes[0].Stage)
	require.True(t, errors.Is(outcomes[0].Err, errkind.ErrPermanentFetch))
	require.Equal(t, int64(1), p.Stats().Failed)
}

func TestParseFailureSurfacesAsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"facts": broken`)) //nolint:errcheck
	}))
	defer server.Close()

	p, _, _ := testPipeline(t, server)
	outcomes, err := p.Run(context.Background(), []Job{testJob(server.URL)})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, StageParse, outcomes[0].Stage)
	require.True(t, errors.Is(outcomes[0].Err, errkind.ErrValidation))
}

func TestMultipleJobsAllProcess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(companyFactsJSON)) //nolint:errcheck
	}))
	defer server.Close()

	p, _, chain := testPipeline(t, server)
	jobs := make([]Job, 3)
	for i := range jobs {
		jobs[i] = testJob(server.URL)
	}
	outcomes, err := p.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		require.True(t, outcome.Result.OK, "reason: %s", outcome.Result.Reason)
	}
	require.Equal(t, int64(3), p.Stats().Processed)

	// three records through the same chain writer still verify
	head, _, ok, err := chain.Head(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, chain.Verify(context.Background(), 0, head))
}

func TestSubmitAfterCloseFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	p, _, _ := testPipeline(t, server)
	require.NoError(t, p.Start(context.Background()))
	p.Close()
	require.Error(t, p.Submit(context.Background(), testJob(server.URL)))
	for range p.Outcomes() {
	}
}

func TestCancelledContextFailsJobs(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _, _ := testPipeline(t, server)
	outcomes, err := p.Run(ctx, []Job{testJob(server.URL)})
	require.NoError(t, err)
	if len(outcomes) == 1 {
		require.True(t, errors.Is(outcomes[0].Err, errkind.ErrCancelled))
	}
}
