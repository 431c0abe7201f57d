package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServeCmd(nil, stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "ingest":
		return runIngestCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "sample":
		return runSampleCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServeCmd(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sfincorpus %s%s\n", ColorBold+ColorBlue, "v1.0.0", ColorReset)
	fmt.Fprintf(w, "%sPrivacy-preserving training corpus for financial AI.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  fincorpus <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "PIPELINE")
	printCommand(w, "serve", "Run the ingestion service (default)")
	printCommand(w, "ingest", "One-shot ingest of filing documents (--url, --type)")

	printSection(w, "AUDIT")
	printCommand(w, "verify", "Verify audit chain integrity (--db, --from, --to)")

	printSection(w, "SAMPLING")
	printCommand(w, "sample", "Audit sampling calculators (mus|classical|attribute)")

	printSection(w, "UTILITIES")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
