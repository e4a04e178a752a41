package agent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/strrl/statement-agent/internal/codegen"
	"github.com/strrl/statement-agent/internal/pdfcontent"
	"github.com/strrl/statement-agent/internal/schema"
	"github.com/strrl/statement-agent/internal/testrunner"
)

// DefaultPDFTimeout bounds one get_pdf_content extraction.
const DefaultPDFTimeout = 60 * time.Second

// DefaultToolbox binds the readers, the writer and the test runner to one
// target's sample files.
type DefaultToolbox struct {
	target  string
	pdfPath string
	csvPath string
	db      *sql.DB
	writer  *codegen.Writer
	runner  *testrunner.Runner

	// PDFTimeout bounds PDF extraction; zero means DefaultPDFTimeout.
	PDFTimeout time.Duration
}

func NewToolbox(conn *sql.DB, writer *codegen.Writer, runner *testrunner.Runner, opts Options) *DefaultToolbox {
	return &DefaultToolbox{
		target:  opts.Target,
		pdfPath: opts.PDFPath,
		csvPath: opts.CSVPath,
		db:      conn,
		writer:  writer,
		runner:  runner,

		PDFTimeout: DefaultPDFTimeout,
	}
}

func (b *DefaultToolbox) PDFContent(ctx context.Context) (*pdfcontent.Content, error) {
	timeout := b.PDFTimeout
	if timeout <= 0 {
		timeout = DefaultPDFTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return pdfcontent.Read(ctx, b.pdfPath)
}

func (b *DefaultToolbox) ExpectedInfo(ctx context.Context) (*schema.Info, error) {
	info, err := schema.Read(ctx, b.db, b.csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.csvPath, err)
	}
	return info, nil
}

func (b *DefaultToolbox) WriteCode(code string) (string, error) {
	return b.writer.Write(b.target, code)
}

func (b *DefaultToolbox) RunTest(ctx context.Context) testrunner.Result {
	return b.runner.Run(ctx, b.target, b.pdfPath, b.csvPath)
}
