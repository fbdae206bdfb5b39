// Command benchmark renders a set of templates with this engine and with
// pongo2 and writes the average time per render as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/flosch/pongo2/v6"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

// BenchmarkCase is one entry of the templates file. Pongo2 holds the
// pongo2 spelling of Template when the two syntaxes differ.
type BenchmarkCase struct {
	Name     string                 `json:"name"`
	Template string                 `json:"template"`
	Pongo2   string                 `json:"pongo2,omitempty"`
	Context  map[string]interface{} `json:"context"`
}

type BenchmarkResult struct {
	Name         string  `json:"name"`
	JinjaMs      float64 `json:"jinja_ms"`
	Pongo2Ms     float64 `json:"pongo2_ms"`
	OutputsMatch bool    `json:"outputs_match"`
}

func main() {
	iterations := flag.Int("iterations", 1000, "Number of iterations for each benchmark")
	outputFile := flag.String("output", "benchmark_results.json", "Output file for benchmark results")
	templatesFile := flag.String("templates", "cmd/benchmark/templates.json", "JSON file containing template test cases")
	flag.Parse()

	if *iterations <= 0 {
		fmt.Println("-iterations must be positive")
		os.Exit(2)
	}

	benchmarks, err := loadBenchmarkCases(*templatesFile)
	if err != nil {
		fmt.Printf("Error loading template cases: %v\n", err)
		os.Exit(1)
	}

	results := make([]BenchmarkResult, 0, len(benchmarks))
	for _, bm := range benchmarks {
		fmt.Printf("Running benchmark: %s\n", bm.Name)
		res, err := runCase(bm, *iterations)
		if err != nil {
			fmt.Printf("Error in benchmark %s: %v\n", bm.Name, err)
			continue
		}
		results = append(results, res)
		fmt.Printf("  jinja: %.6f ms  pongo2: %.6f ms  match: %v\n", res.JinjaMs, res.Pongo2Ms, res.OutputsMatch)
	}

	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling results: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputFile, jsonData, 0o644); err != nil {
		fmt.Printf("Error writing results to file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Benchmark results written to %s\n", *outputFile)
}

func runCase(bm BenchmarkCase, iterations int) (BenchmarkResult, error) {
	ctx, err := jinja.FromGo(bm.Context)
	if err != nil {
		return BenchmarkResult{}, err
	}
	var ours string
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if ours, err = jinja.Render(bm.Template, ctx); err != nil {
			return BenchmarkResult{}, fmt.Errorf("jinja: %w", err)
		}
	}
	jinjaElapsed := time.Since(start)

	source := bm.Template
	if bm.Pongo2 != "" {
		source = bm.Pongo2
	}
	// Compiled once, as pongo2 users would.
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("pongo2: %w", err)
	}
	var theirs string
	start = time.Now()
	for i := 0; i < iterations; i++ {
		if theirs, err = tpl.Execute(pongo2.Context(bm.Context)); err != nil {
			return BenchmarkResult{}, fmt.Errorf("pongo2: %w", err)
		}
	}
	pongoElapsed := time.Since(start)

	return BenchmarkResult{
		Name:         bm.Name,
		JinjaMs:      avgMs(jinjaElapsed, iterations),
		Pongo2Ms:     avgMs(pongoElapsed, iterations),
		OutputsMatch: ours == theirs,
	}, nil
}

func avgMs(d time.Duration, n int) float64 {
	return float64(d.Microseconds()) / float64(n) / 1000.0
}

// loadBenchmarkCases loads benchmark test cases from a JSON file
func loadBenchmarkCases(filename string) ([]BenchmarkCase, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}

	var benchmarks []BenchmarkCase
	if err := json.Unmarshal(data, &benchmarks); err != nil {
		return nil, fmt.Errorf("failed to parse templates JSON: %w", err)
	}
	return benchmarks, nil
}
