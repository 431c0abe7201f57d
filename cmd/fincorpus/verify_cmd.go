package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
)

// runVerifyCmd verifies audit chain integrity: either a live sqlite-backed
// chain (--db) or an exported evidence bundle file (--bundle).
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		bundlePath string
		exportPath string
		from       uint64
		to         uint64
		record     bool
		actor      string
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to the audit chain sqlite database")
	cmd.StringVar(&bundlePath, "bundle", "", "Path to an exported evidence bundle file")
	cmd.StringVar(&exportPath, "export", "", "Export the verified range as an evidence bundle to this file")
	cmd.Uint64Var(&from, "from", 0, "First sequence number to verify")
	cmd.Uint64Var(&to, "to", 0, "Last sequence number to verify (default: head)")
	cmd.BoolVar(&record, "record", false, "Append an INTEGRITY_CHECK_PERFORMED event with the result")
	cmd.StringVar(&actor, "actor", "cli", "Actor recorded on the integrity check event")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbPath == "" && bundlePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --db or --bundle is required")
		return 2
	}

	if bundlePath != "" {
		return verifyBundleFile(bundlePath, jsonOutput, stdout, stderr)
	}

	ctx := context.Background()
	store, err := auditchain.NewSQLiteStore(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = store.Close() }()
	chain := auditchain.New(store)

	head, _, ok, err := chain.Head(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !ok {
		_, _ = fmt.Fprintln(stdout, "Chain is empty; nothing to verify")
		return 0
	}
	if to == 0 || to > head {
		to = head
	}

	verifyErr := chain.Verify(ctx, from, to)
	if record {
		if err := chain.RunIntegrityCheck(ctx, from, to, actor); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: recording integrity check: %v\n", err)
			return 2
		}
	}
	if exportPath != "" && verifyErr == nil {
		bundle, err := chain.ExportBundle(ctx, from, to)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: export bundle: %v\n", err)
			return 2
		}
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := os.WriteFile(exportPath, data, 0o644); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Exported bundle %s (events %d..%d) to %s\n",
			bundle.BundleID, bundle.StartSeq, bundle.EndSeq, exportPath)
	}

	return reportVerification(verifyErr, from, to, jsonOutput, stdout)
}

func verifyBundleFile(path string, jsonOutput bool, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	var bundle auditchain.EvidenceBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse bundle: %v\n", err)
		return 2
	}
	if len(bundle.Events) == 0 {
		_, _ = fmt.Fprintln(stdout, "Bundle is empty; nothing to verify")
		return 0
	}
	first := bundle.Events[0].Seq
	last := bundle.Events[len(bundle.Events)-1].Seq
	return reportVerification(auditchain.VerifyBundle(&bundle), first, last, jsonOutput, stdout)
}

func reportVerification(verifyErr error, from, to uint64, jsonOutput bool, stdout io.Writer) int {
	type result struct {
		Verified bool   `json:"verified"`
		From     uint64 `json:"from"`
		To       uint64 `json:"to"`
		Error    string `json:"error,omitempty"`
	}
	res := result{Verified: verifyErr == nil, From: from, To: to}
	if verifyErr != nil {
		res.Error = verifyErr.Error()
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if res.Verified {
		_, _ = fmt.Fprintf(stdout, "PASS: events %d..%d verify\n", from, to)
	} else {
		_, _ = fmt.Fprintf(stdout, "FAIL: %v\n", verifyErr)
	}

	if !res.Verified {
		return 1
	}
	return 0
}
