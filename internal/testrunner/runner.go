// Package testrunner checks a generated parser module against the reference
// table for its target.
package testrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/strrl/statement-agent/internal/plugin"
	"github.com/strrl/statement-agent/internal/table"
)

// Status classifies a test result.
type Status string

const (
	StatusPassed        Status = "passed"
	StatusNotFound      Status = "not_found"
	StatusLoadFailed    Status = "load_failed"
	StatusRuntimeFailed Status = "runtime_failed"
	StatusMismatch      Status = "mismatch"
)

const (
	passedMessage   = "TEST PASSED"
	notFoundMessage = "Parser file does not exist."
	failedPrefix    = "TEST FAILED: "
	headRows        = 5
)

// Result is the outcome of one test run. Message is what the model sees.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`

	ParsedShape   string `json:"parsed_shape,omitempty"`
	ExpectedShape string `json:"expected_shape,omitempty"`
}

// Passed reports whether the module reproduced the reference table.
func (r Result) Passed() bool {
	return r.Status == StatusPassed
}

func (r Result) String() string {
	return r.Message
}

// ModuleLocator maps a target onto its parser module path.
type ModuleLocator interface {
	Path(target string) string
}

// Runner loads a target's parser, runs it on the sample PDF and compares
// its output with the reference CSV.
type Runner struct {
	db      *sql.DB
	modules ModuleLocator
	loader  plugin.Loader
}

func New(conn *sql.DB, modules ModuleLocator, loader plugin.Loader) *Runner {
	return &Runner{
		db:      conn,
		modules: modules,
		loader:  loader,
	}
}

// Run never returns an error: every failure, including panics inside the
// generated module, is reported through the Result.
func (r *Runner) Run(ctx context.Context, target, pdfPath, csvPath string) Result {
	modulePath := r.modules.Path(target)
	if _, err := os.Stat(modulePath); err != nil {
		return Result{Status: StatusNotFound, Message: notFoundMessage}
	}

	p, err := r.loader.Load(ctx, modulePath)
	if err != nil {
		switch {
		case errors.Is(err, plugin.ErrNotFound):
			return Result{Status: StatusNotFound, Message: notFoundMessage}
		case errors.Is(err, plugin.ErrLoad):
			return failed(StatusLoadFailed, "Parser module failed to build: "+err.Error())
		default:
			return failed(StatusLoadFailed, err.Error())
		}
	}
	defer p.Close()

	output, err := p.Parse(ctx, pdfPath)
	if err != nil {
		return failed(StatusRuntimeFailed, err.Error())
	}

	parsed, err := r.loadCandidate(ctx, output)
	if err != nil {
		return failed(StatusRuntimeFailed, err.Error())
	}

	expected, err := table.LoadCSV(ctx, r.db, csvPath)
	if err != nil {
		return failed(StatusRuntimeFailed, err.Error())
	}

	return Compare(parsed, expected)
}

// Compare checks two loaded tables for exact equality.
func Compare(parsed, expected *table.Table) Result {
	if table.Equal(parsed, expected) {
		return Result{
			Status:        StatusPassed,
			Message:       passedMessage,
			ParsedShape:   parsed.ShapeString(),
			ExpectedShape: expected.ShapeString(),
		}
	}

	parsedHead := parsed.Head(headRows)
	expectedHead := expected.Head(headRows)

	var sb strings.Builder
	fmt.Fprintf(&sb, "DataFrames do not match. Parsed shape: %s, Expected shape: %s. ",
		parsed.ShapeString(), expected.ShapeString())
	fmt.Fprintf(&sb, "Sample diff: Parsed head:\n%s\nExpected head:\n%s", parsedHead, expectedHead)

	if detail := describeMismatch(parsed, expected); detail != "" {
		fmt.Fprintf(&sb, "\n%s", detail)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(parsedHead + "\n"),
		B:        difflib.SplitLines(expectedHead + "\n"),
		FromFile: "parsed",
		ToFile:   "expected",
		Context:  1,
	})
	if err == nil && diff != "" {
		fmt.Fprintf(&sb, "\nHead diff:\n%s", strings.TrimRight(diff, "\n"))
	}

	res := failed(StatusMismatch, sb.String())
	res.ParsedShape = parsed.ShapeString()
	res.ExpectedShape = expected.ShapeString()
	return res
}

// describeMismatch names the first structural difference, which the heads
// alone do not show (column types in particular).
func describeMismatch(parsed, expected *table.Table) string {
	if strings.Join(parsed.Columns, "\x00") != strings.Join(expected.Columns, "\x00") {
		return fmt.Sprintf("Columns differ: parsed %q, expected %q", parsed.Columns, expected.Columns)
	}
	for i := range parsed.Types {
		if parsed.Types[i] != expected.Types[i] {
			return fmt.Sprintf("Column %q type differs: parsed %s, expected %s",
				parsed.Columns[i], parsed.Types[i], expected.Types[i])
		}
	}
	if len(parsed.Rows) != len(expected.Rows) {
		return ""
	}
	for i := range parsed.Rows {
		for j := range parsed.Rows[i] {
			p := table.FormatValue(parsed.Rows[i][j])
			e := table.FormatValue(expected.Rows[i][j])
			if p != e {
				return fmt.Sprintf("First differing cell: row %d column %q: parsed %q, expected %q",
					i, parsed.Columns[j], p, e)
			}
		}
	}
	return ""
}

func (r *Runner) loadCandidate(ctx context.Context, output []byte) (*table.Table, error) {
	if len(strings.TrimSpace(string(output))) == 0 {
		return nil, errors.New("parser produced no output")
	}

	dir, err := os.MkdirTemp("", "statement-agent-candidate-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "parsed.csv")
	if err := os.WriteFile(path, output, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage parser output: %w", err)
	}

	tbl, err := table.LoadCSV(ctx, r.db, path, table.RFC4180())
	if err != nil {
		return nil, fmt.Errorf("parser output is not a valid table: %w", err)
	}
	return tbl, nil
}

func failed(status Status, msg string) Result {
	return Result{Status: status, Message: failedPrefix + msg}
}
