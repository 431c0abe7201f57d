package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
	"github.com/Veridata-Labs/fincorpus/core/pkg/pipeline"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// runIngestCmd performs a one-shot ingest of a single filing document and
// reports the resulting record.
//
// Exit codes:
//
//	0 = record processed
//	1 = record rejected or parked
//	2 = runtime error
func runIngestCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath    string
		url           string
		contentType   string
		statementType string
		filingID      string
		issuerID      string
		formType      string
		periodEnd     string
		company       string
		source        string
		tenantID      string
		userID        string
		jsonOutput    bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	cmd.StringVar(&url, "url", "", "Document URL (REQUIRED)")
	cmd.StringVar(&contentType, "content-type", "", "Document content type (sniffed when empty)")
	cmd.StringVar(&statementType, "type", "BALANCE_SHEET", "Statement type")
	cmd.StringVar(&filingID, "filing-id", "", "Filing identifier")
	cmd.StringVar(&issuerID, "issuer", "", "Issuer identifier")
	cmd.StringVar(&formType, "form", "10-K", "Form type")
	cmd.StringVar(&periodEnd, "period-end", "", "Declared period end (YYYY-MM-DD)")
	cmd.StringVar(&company, "company", "", "Company name (tokenized on ingest)")
	cmd.StringVar(&source, "source", "edgar", "Source label")
	cmd.StringVar(&tenantID, "tenant", "default", "Tenant identifier")
	cmd.StringVar(&userID, "user", "cli", "Acting user")
	cmd.BoolVar(&jsonOutput, "json", false, "Output outcome as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if url == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --url is required")
		return 2
	}

	cfg, err := loadConfig(configPath)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer s.close()

	job := pipeline.Job{
		Filing: &filing.Filing{
			FilingID:  filingID,
			IssuerID:  issuerID,
			FormType:  formType,
			PeriodEnd: periodEnd,
		},
		DocumentURL:   url,
		ContentType:   contentType,
		StatementType: statement.Type(statementType),
		Source:        source,
		CompanyName:   company,
		TenantID:      tenantID,
		UserID:        userID,
	}
	outcomes, err := s.pipeline.Run(ctx, []pipeline.Job{job})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(outcomes) != 1 {
		_, _ = fmt.Fprintln(stderr, "Error: no outcome produced")
		return 2
	}

	outcome := outcomes[0]
	if jsonOutput {
		data, _ := json.MarshalIndent(outcome, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if outcome.Err != nil {
		_, _ = fmt.Fprintf(stdout, "FAILED at %s: %v\n", outcome.Stage, outcome.Err)
	} else if outcome.Result.OK {
		_, _ = fmt.Fprintf(stdout, "OK record %s\n", outcome.RecordID)
	} else {
		_, _ = fmt.Fprintf(stdout, "REJECTED record %s: %s\n", outcome.RecordID, outcome.Result.Reason)
	}

	if outcome.Err != nil || !outcome.Result.OK {
		return 1
	}
	return 0
}
