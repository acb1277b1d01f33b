// pkg/extract/pdf.go
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Runner executes an external command and returns its captured output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args and captures stdout and stderr separately
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

var columnGap = regexp.MustCompile(`\s{2,}`)

// PDFExtractor reads a tabular PDF through pdftotext's layout mode
type PDFExtractor struct {
	runner Runner
	client *http.Client
	binary string
	logger *zap.Logger
}

// NewPDFExtractor creates a PDF extractor; a nil runner uses ExecRunner
func NewPDFExtractor(runner Runner, client *http.Client, logger *zap.Logger) *PDFExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{runner: runner, client: client, binary: "pdftotext", logger: logger.Named("pdf")}
}

// Extract converts src.Location (path or http(s) URL) to text and parses the table.
// Option "header" names a token that identifies the header line.
func (e *PDFExtractor) Extract(ctx context.Context, src Source) (*model.Table, error) {
	path, cleanup, err := e.localCopy(ctx, src.Location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	stdout, stderr, err := e.runner.Run(ctx, e.binary, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	table, skipped, err := ParseLayoutText(string(stdout), src.Option("header", "card_number"))
	if err != nil {
		return nil, err
	}
	table.Name = src.Option("table", "card_details")
	if skipped > 0 {
		e.logger.Warn("Skipped unparseable PDF lines", zap.Int("lines", skipped))
	}
	return table, nil
}

// localCopy returns a readable path for location, downloading remote PDFs to a temp file
func (e *PDFExtractor) localCopy(ctx context.Context, location string) (string, func(), error) {
	if !isHTTP(location) {
		if _, err := os.Stat(location); err != nil {
			return "", nil, fmt.Errorf("pdf source: %w", err)
		}
		return location, func() {}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return "", nil, fmt.Errorf("failed to download %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("failed to download %s: status %d", location, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "ingress-*.pdf")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to save %s: %w", location, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	e.logger.Debug("Downloaded PDF", zap.String("url", location), zap.String("path", f.Name()))
	return f.Name(), cleanup, nil
}

// ParseLayoutText splits pdftotext -layout output into a table.
// Columns are separated by runs of two or more spaces. The first line containing
// headerToken becomes the header; later copies of it (one per page) are skipped.
// Short rows are padded with nil; rows with too many fields are skipped and counted.
func ParseLayoutText(text, headerToken string) (*model.Table, int, error) {
	var (
		header  []string
		headKey string
		table   *model.Table
		skipped int
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\f", ""))
		if line == "" {
			continue
		}
		fields := columnGap.Split(line, -1)

		if header == nil {
			if strings.Contains(strings.ToLower(line), strings.ToLower(headerToken)) {
				header = fields
				headKey = strings.Join(fields, "\x00")
				table = model.NewTable("", header...)
			}
			continue
		}
		if strings.Join(fields, "\x00") == headKey {
			continue
		}
		if len(fields) > len(header) {
			skipped++
			continue
		}

		row := make([]any, len(header))
		for i, f := range fields {
			row[i] = f
		}
		table.Rows = append(table.Rows, row)
	}

	if table == nil {
		return nil, 0, errors.New("pdf text has no header line containing " + headerToken)
	}
	return table, skipped, nil
}

func isHTTP(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
