package testrunner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/statement-agent/internal/codegen"
	"github.com/strrl/statement-agent/internal/db"
	"github.com/strrl/statement-agent/internal/plugin"
)

type fakePlugin struct {
	output []byte
	err    error
	closed bool
}

func (p *fakePlugin) Parse(ctx context.Context, pdfPath string) ([]byte, error) {
	return p.output, p.err
}

func (p *fakePlugin) Close() error {
	p.closed = true
	return nil
}

type fakeLoader struct {
	plugin *fakePlugin
	err    error
	loaded []string
}

func (l *fakeLoader) Load(ctx context.Context, sourcePath string) (plugin.Plugin, error) {
	l.loaded = append(l.loaded, sourcePath)
	if l.err != nil {
		return nil, l.err
	}
	return l.plugin, nil
}

func statementCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("Date,Description,Debit,Credit,Balance\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&sb, "%02d-08-2024,Txn %d,%d.25,,%d.75\n", i, i, i, 500+i)
	}
	return sb.String()
}

type fixture struct {
	runner  *Runner
	loader  *fakeLoader
	writer  *codegen.Writer
	pdfPath string
	csvPath string
}

func newFixture(t *testing.T, expectedRows int) *fixture {
	t.Helper()

	conn, err := db.Open()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "icici_sample.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(statementCSV(expectedRows)), 0644))

	writer := codegen.NewWriter(filepath.Join(dir, "custom_parsers"))
	loader := &fakeLoader{plugin: &fakePlugin{}}

	return &fixture{
		runner:  New(conn, writer, loader),
		loader:  loader,
		writer:  writer,
		pdfPath: filepath.Join(dir, "icici_sample.pdf"),
		csvPath: csvPath,
	}
}

func (f *fixture) writeModule(t *testing.T) {
	t.Helper()
	_, err := f.writer.Write("icici", "package main\n")
	require.NoError(t, err)
}

func (f *fixture) run() Result {
	return f.runner.Run(context.Background(), "icici", f.pdfPath, f.csvPath)
}

func TestRunPasses(t *testing.T) {
	f := newFixture(t, 10)
	f.writeModule(t)
	f.loader.plugin.output = []byte(statementCSV(10))

	res := f.run()

	assert.True(t, res.Passed())
	assert.Equal(t, "TEST PASSED", res.Message)
	assert.Equal(t, "(10, 5)", res.ParsedShape)
	assert.Equal(t, []string{f.writer.Path("icici")}, f.loader.loaded)
	assert.True(t, f.loader.plugin.closed)
}

func TestRunMissingModule(t *testing.T) {
	f := newFixture(t, 10)

	res := f.run()

	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, "Parser file does not exist.", res.Message)
	assert.Empty(t, f.loader.loaded, "loader is not consulted without a module file")
}

func TestRunRowCountMismatch(t *testing.T) {
	f := newFixture(t, 10)
	f.writeModule(t)
	f.loader.plugin.output = []byte(statementCSV(9))

	res := f.run()

	assert.False(t, res.Passed())
	assert.Equal(t, StatusMismatch, res.Status)
	assert.Equal(t, "(9, 5)", res.ParsedShape)
	assert.Equal(t, "(10, 5)", res.ExpectedShape)
	assert.True(t, strings.HasPrefix(res.Message, "TEST FAILED: DataFrames do not match."))
	assert.Contains(t, res.Message, "Parsed shape: (9, 5), Expected shape: (10, 5)")
	assert.Contains(t, res.Message, "Parsed head:")
	assert.Contains(t, res.Message, "Expected head:")
	assert.Contains(t, res.Message, "Txn 1")
}

func TestRunTypeMismatch(t *testing.T) {
	f := newFixture(t, 3)
	f.writeModule(t)
	f.loader.plugin.output = []byte(strings.ReplaceAll(statementCSV(3), ".75\n", ".75 CR\n"))

	res := f.run()

	assert.Equal(t, StatusMismatch, res.Status)
	assert.Contains(t, res.Message, `Column "Balance" type differs`)
}

func TestRunValueMismatch(t *testing.T) {
	f := newFixture(t, 3)
	f.writeModule(t)
	f.loader.plugin.output = []byte(strings.Replace(statementCSV(3), "Txn 2", "TXN 2", 1))

	res := f.run()

	assert.Equal(t, StatusMismatch, res.Status)
	assert.Contains(t, res.Message, `row 1 column "Description": parsed "TXN 2", expected "Txn 2"`)
	assert.Contains(t, res.Message, "Head diff:")
}

func TestRunLoadFailure(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "missing import", output: "parser.go:3:8: no required module provides package github.com/ledongthuc/pdf"},
		{name: "wrong package", output: "parser.go:1:1: found packages parser (parser.go) and main (main.go)"},
		{name: "syntax error", output: "parser.go:7:2: syntax error: unexpected }, expected expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.writeModule(t)
			f.loader.err = &plugin.LoadError{
				Source: f.writer.Path("icici"),
				Output: tt.output,
				Err:    errors.New("exit status 1"),
			}

			res := f.run()

			assert.Equal(t, StatusLoadFailed, res.Status)
			assert.Equal(t, "TEST FAILED: Parser module failed to build: "+tt.output, res.Message)
			assert.NotContains(t, res.Message, "invalid imports")
		})
	}
}

func TestRunRuntimeFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.writeModule(t)
	f.loader.plugin.err = &plugin.RuntimeError{Message: "panic: runtime error: integer divide by zero"}

	res := f.run()

	assert.Equal(t, StatusRuntimeFailed, res.Status)
	assert.Equal(t, "TEST FAILED: panic: runtime error: integer divide by zero", res.Message)
	assert.True(t, f.loader.plugin.closed)
}

func TestRunEmptyOutput(t *testing.T) {
	f := newFixture(t, 10)
	f.writeModule(t)
	f.loader.plugin.output = []byte("\n")

	res := f.run()

	assert.Equal(t, StatusRuntimeFailed, res.Status)
	assert.Equal(t, "TEST FAILED: parser produced no output", res.Message)
}
