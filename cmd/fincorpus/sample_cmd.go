package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Veridata-Labs/fincorpus/core/pkg/sampling"
)

// runSampleCmd exposes the audit sampling calculators.
//
// Usage:
//
//	fincorpus sample mus --book-value 1000000 --tolerable 50000 --risk MODERATE
//	fincorpus sample classical --population 5000 --stddev 250 --tolerable 100000 --risk MODERATE
//	fincorpus sample attribute --expected-rate 0.01 --tolerable-rate 0.05 --risk LOW --population 10000
func runSampleCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: fincorpus sample <mus|classical|attribute> [flags]")
		return 2
	}

	switch args[0] {
	case "mus":
		return runSampleMUS(args[1:], stdout, stderr)
	case "classical":
		return runSampleClassical(args[1:], stdout, stderr)
	case "attribute":
		return runSampleAttribute(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown sampling method: %s\n", args[0])
		return 2
	}
}

func parseRisk(s string) sampling.Risk {
	return sampling.Risk(strings.ToUpper(s))
}

func runSampleMUS(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sample mus", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bookValue  float64
		tolerable  float64
		expected   float64
		risk       string
		jsonOutput bool
	)
	cmd.Float64Var(&bookValue, "book-value", 0, "Population book value (REQUIRED)")
	cmd.Float64Var(&tolerable, "tolerable", 0, "Tolerable misstatement (REQUIRED)")
	cmd.Float64Var(&expected, "expected", 0, "Expected misstatement")
	cmd.StringVar(&risk, "risk", "MODERATE", "Risk level: LOW, MODERATE, HIGH")
	cmd.BoolVar(&jsonOutput, "json", false, "Output plan as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	plan, err := sampling.MUSSize(bookValue, tolerable, expected, parseRisk(risk))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if jsonOutput {
		data, _ := json.MarshalIndent(plan, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "MUS plan: n=%d interval=%.2f RF=%.2f\n",
			plan.SampleSize, plan.Interval, plan.RF)
	}
	return 0
}

func runSampleClassical(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sample classical", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		population int
		stddev     float64
		tolerable  float64
		risk       string
		jsonOutput bool
	)
	cmd.IntVar(&population, "population", 0, "Population size (REQUIRED)")
	cmd.Float64Var(&stddev, "stddev", 0, "Estimated population standard deviation (REQUIRED)")
	cmd.Float64Var(&tolerable, "tolerable", 0, "Tolerable misstatement (REQUIRED)")
	cmd.StringVar(&risk, "risk", "MODERATE", "Risk level: LOW, MODERATE, HIGH")
	cmd.BoolVar(&jsonOutput, "json", false, "Output plan as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	plan, err := sampling.ClassicalSize(population, stddev, tolerable, parseRisk(risk))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if jsonOutput {
		data, _ := json.MarshalIndent(plan, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "Classical plan: n=%d z=%.3f\n", plan.SampleSize, plan.Z)
	}
	return 0
}

func runSampleAttribute(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sample attribute", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		expectedRate  float64
		tolerableRate float64
		population    int
		risk          string
		jsonOutput    bool
	)
	cmd.Float64Var(&expectedRate, "expected-rate", 0, "Expected deviation rate")
	cmd.Float64Var(&tolerableRate, "tolerable-rate", 0, "Tolerable deviation rate (REQUIRED)")
	cmd.IntVar(&population, "population", 0, "Population size (REQUIRED)")
	cmd.StringVar(&risk, "risk", "LOW", "Risk level: LOW, MODERATE, HIGH")
	cmd.BoolVar(&jsonOutput, "json", false, "Output plan as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	plan, err := sampling.AttributeSize(expectedRate, tolerableRate, parseRisk(risk), population)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if jsonOutput {
		data, _ := json.MarshalIndent(plan, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		source := "formula"
		if plan.FromTable {
			source = "table"
		}
		_, _ = fmt.Fprintf(stdout, "Attribute plan: n=%d z=%.3f (%s)\n", plan.SampleSize, plan.Z, source)
	}
	return 0
}
