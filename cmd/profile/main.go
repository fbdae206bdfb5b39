// Command profile renders one template many times with CPU, heap and
// block profiling, to find hot spots in the engine.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/contextfile"
)

var (
	cpuprofile   = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile   = flag.String("memprofile", "", "write memory profile to file")
	blockprofile = flag.String("blockprofile", "", "write goroutine blocking profile to file")
	templateFile = flag.String("template", "", "template file to render")
	contextFile  = flag.String("context", "", "JSON or YAML file with context data")
	iterations   = flag.Int("iterations", 1000, "number of iterations to run")
	template     = flag.String("template-string", "", "template string to render (alternative to template file)")
	outputDir    = flag.String("output-dir", "profile", "directory to store profile output")
	strict       = flag.Bool("strict", false, "fail on missing variables")
)

func main() {
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	var templateContent string
	switch {
	case *templateFile != "":
		content, err := os.ReadFile(*templateFile)
		if err != nil {
			log.Fatalf("Failed to read template file: %v", err)
		}
		templateContent = string(content)
	case *template != "":
		templateContent = *template
	default:
		log.Fatal("Either -template or -template-string must be provided")
	}

	ctx := jinja.Map()
	if *contextFile != "" {
		var err error
		if ctx, err = contextfile.Load(*contextFile); err != nil {
			log.Fatalf("Failed to load context: %v", err)
		}
	}

	undefined := jinja.UndefinedLenient
	if *strict {
		undefined = jinja.UndefinedStrict
	}
	engine := jinja.New(jinja.WithUndefined(undefined))

	if *blockprofile != "" {
		runtime.SetBlockProfileRate(1)
	}

	if *cpuprofile != "" {
		cpuFile := filepath.Join(*outputDir, *cpuprofile)
		f, err := os.Create(cpuFile)
		if err != nil {
			log.Fatalf("Failed to create CPU profile file: %v", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Failed to start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Printf("CPU profiling enabled, writing to %s\n", cpuFile)
	}

	fmt.Printf("Rendering template %d times\n", *iterations)
	start := time.Now()

	var result string
	for i := 0; i < *iterations; i++ {
		var err error
		if result, err = engine.Render(templateContent, ctx); err != nil {
			log.Fatalf("Failed to render template: %v", err)
		}
	}

	duration := time.Since(start)
	fmt.Printf("Result length: %d\n", len(result))
	fmt.Printf("Time taken: %v\n", duration)
	if *iterations > 0 {
		fmt.Printf("Average time per iteration: %v\n", duration/time.Duration(*iterations))
	}

	if *memprofile != "" {
		runtime.GC()
		writeProfile(*memprofile, "Memory", pprof.WriteHeapProfile)
	}
	if *blockprofile != "" {
		writeProfile(*blockprofile, "Block", func(w io.Writer) error {
			return pprof.Lookup("block").WriteTo(w, 0)
		})
	}
}

// writeProfile creates name inside the output directory and fills it with
// write.
func writeProfile(name, kind string, write func(io.Writer) error) {
	path := filepath.Join(*outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s profile file: %v", strings.ToLower(kind), err)
	}
	if err := write(f); err != nil {
		log.Fatalf("Failed to write %s profile: %v", strings.ToLower(kind), err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s profile: %v", strings.ToLower(kind), err)
	}
	fmt.Printf("%s profile written to %s\n", kind, path)
}
