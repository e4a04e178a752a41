// Package pdfcontent extracts raw text and table-like cell grids from a PDF.
package pdfcontent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dslipak/pdf"
)

var (
	// ErrOpen is returned when the PDF cannot be opened or parsed.
	ErrOpen = errors.New("failed to open pdf")

	// ErrMalformed is returned when the pdf library panics on the file.
	ErrMalformed = errors.New("malformed pdf")
)

// Content is what the model sees of a sample statement.
type Content struct {
	Text   string       `json:"text"`
	Tables [][][]string `json:"tables"`
}

// extractFile is swapped in tests to simulate a reader that never returns.
var extractFile = extract

// Read extracts the text of every page and the tables found on them.
// Pages without extractable text contribute an empty string to Text.
//
// The pdf library loops forever on some malformed files and cannot be
// interrupted, so extraction runs in its own goroutine and Read returns as
// soon as ctx is done. The abandoned goroutine exits if the library ever
// does.
func Read(ctx context.Context, path string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pdf extraction of %s stopped: %w", path, err)
	}

	type result struct {
		content *Content
		err     error
	}
	done := make(chan result, 1)
	run := extractFile

	go func() {
		content, err := run(path)
		done <- result{content, err}
	}()

	select {
	case r := <-done:
		return r.content, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("pdf extraction of %s stopped: %w", path, ctx.Err())
	}
}

func extract(path string) (content *Content, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			content = nil
			err = fmt.Errorf("%w %s: %v", ErrMalformed, path, rec)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	tables := [][][]string{}

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		tables = append(tables, buildTables(rows)...)
	}

	return &Content{
		Text:   strings.Join(pages, "\n"),
		Tables: tables,
	}, nil
}

// buildTables groups positioned text rows into cell grids. Runs separated by
// a wide horizontal gap become separate cells; consecutive rows with at least
// two cells form a table, and a row with fewer cells ends it.
func buildTables(rows pdf.Rows) [][][]string {
	var tables [][][]string
	var current [][]string

	flush := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, row := range rows {
		if row == nil {
			continue
		}
		cells := splitCells(row.Content)
		if len(cells) < 2 {
			flush()
			continue
		}
		current = append(current, cells)
	}
	flush()

	return tables
}

func splitCells(texts pdf.TextHorizontal) []string {
	if len(texts) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []string
	var cell strings.Builder
	prevEnd := sorted[0].X

	for i, t := range sorted {
		if i > 0 {
			gap := t.X - prevEnd
			switch {
			case gap > cellGap(t.FontSize):
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case gap > wordGap(t.FontSize):
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(t.S)
		prevEnd = runEnd(t)
	}
	cells = append(cells, strings.TrimSpace(cell.String()))

	out := cells[:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func runEnd(t pdf.Text) float64 {
	if t.W > 0 {
		return t.X + t.W
	}
	size := t.FontSize
	if size <= 0 {
		size = 10
	}
	return t.X + size*0.5*float64(len([]rune(t.S)))
}

func cellGap(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = 10
	}
	return fontSize * 1.5
}

func wordGap(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = 10
	}
	return fontSize * 0.2
}
