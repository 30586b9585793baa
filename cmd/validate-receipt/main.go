package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/external/openai"
	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitBlocked  = 3
	usageMessage = "Usage: validate-receipt (-file extraction.json | -image receipt.jpg [-key sk-...]) [-w-supplier 0.25 ...]"
)

type options struct {
	file      string
	image     string
	apiKey    string
	model     string
	timeout   time.Duration
	asOf      time.Time
	weights   validation.Weights
	threshold int
	verbose   bool
}

type report struct {
	Source     string                         `json:"source"`
	Extraction receipt.Extraction             `json:"extraction"`
	Breakdown  validation.ConfidenceBreakdown `json:"breakdown"`
	Validation validation.ValidationResult    `json:"validation"`
	Confirm    gate.ConfirmDecision           `json:"confirm"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns its exit code
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "ERROR: %v\n%s\n", err, usageMessage)
		}
		return exitUsage
	}

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
			return exitFailure
		}
	}
	defer logger.Sync()

	raw, source, err := loadExtraction(opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}

	e, err := receipt.ParseExtraction(raw)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %s is not a JSON extraction: %v\n", source, err)
		return exitFailure
	}

	validatorOpts := []validation.Option{
		validation.WithWeights(opts.weights),
		validation.WithReviewThreshold(opts.threshold),
	}
	if !opts.asOf.IsZero() {
		asOf := opts.asOf
		validatorOpts = append(validatorOpts, validation.WithClock(func() time.Time { return asOf }))
	}
	result := validation.NewValidator(validatorOpts...).Validate(e)

	out, err := json.MarshalIndent(report{
		Source:     source,
		Extraction: e,
		Breakdown:  result.Breakdown,
		Validation: result,
		Confirm:    gate.CanConfirm(e),
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}
	fmt.Fprintln(stdout, string(out))

	if !result.CanProceed {
		return exitBlocked
	}
	return exitOK
}

// parseOptions reads the flags and checks the weights, threshold and input choice
func parseOptions(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("validate-receipt", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	defaults := validation.DefaultWeights()
	var asOf string

	fs.StringVar(&opts.file, "file", "", "extraction JSON file to validate")
	fs.StringVar(&opts.image, "image", "", "receipt image or PDF to extract with the vision model first")
	fs.StringVar(&opts.apiKey, "key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	fs.StringVar(&opts.model, "model", "gpt-4o", "vision model used with -image")
	fs.DurationVar(&opts.timeout, "timeout", 90*time.Second, "API call timeout")
	fs.StringVar(&asOf, "as-of", "", "validate dates as of this day, YYYY-MM-DD (default today)")
	fs.Float64Var(&opts.weights.Supplier, "w-supplier", defaults.Supplier, "supplier weight")
	fs.Float64Var(&opts.weights.Total, "w-total", defaults.Total, "total weight")
	fs.Float64Var(&opts.weights.Items, "w-items", defaults.Items, "items weight")
	fs.Float64Var(&opts.weights.TotalMatch, "w-total-match", defaults.TotalMatch, "items vs total match weight")
	fs.Float64Var(&opts.weights.Date, "w-date", defaults.Date, "date weight")
	fs.IntVar(&opts.threshold, "threshold", validation.DefaultReviewThreshold, "confidence below which review is required")
	fs.BoolVar(&opts.verbose, "verbose", false, "Verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if (opts.file == "") == (opts.image == "") {
		return nil, fmt.Errorf("exactly one of -file or -image is required")
	}
	if err := opts.weights.Validate(); err != nil {
		return nil, err
	}
	if opts.threshold < 0 || opts.threshold > 100 {
		return nil, fmt.Errorf("-threshold must be between 0 and 100, got %d", opts.threshold)
	}
	if asOf != "" {
		day, err := time.ParseInLocation("2006-01-02", asOf, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid -as-of date: %w", err)
		}
		opts.asOf = day.Add(12 * time.Hour)
	}

	return opts, nil
}

// loadExtraction returns the raw extraction JSON and where it came from
func loadExtraction(opts *options, logger *zap.Logger) ([]byte, string, error) {
	if opts.file != "" {
		raw, err := os.ReadFile(opts.file)
		return raw, opts.file, err
	}
	raw, err := extract(opts.image, opts.apiKey, opts.model, opts.timeout, logger)
	return raw, opts.image, err
}

// extract sends one receipt file to the vision model and returns its raw answer
func extract(path, apiKey, model string, timeout time.Duration, logger *zap.Logger) ([]byte, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set and no -key flag provided")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	extractor := openai.NewExtractor(openai.Config{
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
	}, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return extractor.Extract(ctx, []port.ReceiptImage{{
		Name:     filepath.Base(path),
		MimeType: http.DetectContentType(data),
		Data:     data,
	}})
}
