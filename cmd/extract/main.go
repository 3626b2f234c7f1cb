package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/maltedev/seller-scraper/internal/extractor"
	"github.com/maltedev/seller-scraper/internal/models"
)

type output struct {
	Seller  models.SellerRecord     `json:"seller"`
	Sources map[models.Field]string `json:"sources,omitempty"`
	Found   int                     `json:"found"`
}

func main() {
	var (
		input    = flag.String("file", "", "Seller page HTML file (default: stdin)")
		text     = flag.Bool("text", false, "Treat the input as plain page text instead of HTML")
		baseline = flag.Bool("baseline", false, "Use the baseline strategy set only")
		sources  = flag.Bool("sources", false, "Include the strategy that supplied each field")
	)
	flag.Parse()

	raw, err := readInput(*input)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	engine := extractor.Ultimate()
	if *baseline {
		engine = extractor.Baseline()
	}

	in := extractor.Input{HTML: string(raw)}
	if *text {
		in = extractor.Input{Text: string(raw)}
	}
	result := engine.Extract(in)

	out := output{
		Seller: result.Record,
		Found:  result.Record.FoundCount(),
	}
	if *sources {
		out.Sources = result.Sources
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
