package pdfcontent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dslipak/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run lays out words left to right starting at x, one character = 5pt.
func run(x, y float64, words ...string) pdf.TextHorizontal {
	var out pdf.TextHorizontal
	for _, w := range words {
		out = append(out, pdf.Text{X: x, Y: y, W: float64(len(w)) * 5, FontSize: 10, S: w})
		x += float64(len(w))*5 + 3
	}
	return out
}

func row(y float64, parts ...pdf.TextHorizontal) *pdf.Row {
	r := &pdf.Row{Position: int64(y)}
	for _, p := range parts {
		r.Content = append(r.Content, p...)
	}
	return r
}

func TestBuildTables(t *testing.T) {
	rows := pdf.Rows{
		row(800, run(40, 800, "ICICI", "Bank", "Statement")),
		row(780, run(40, 780, "Date"), run(120, 780, "Description"), run(300, 780, "Balance")),
		row(760, run(40, 760, "01-08-2024"), run(120, 760, "Salary", "Credit"), run(300, 760, "6864.58")),
		row(740, run(40, 740, "02-08-2024"), run(120, 740, "UPI", "Payment"), run(300, 740, "6000.00")),
		row(700, run(40, 700, "Page", "1")),
		row(680, run(40, 680, "lonely"), run(200, 680, "row")),
	}

	tables := buildTables(rows)

	require.Len(t, tables, 1, "single-row blocks are dropped")
	assert.Equal(t, [][]string{
		{"Date", "Description", "Balance"},
		{"01-08-2024", "Salary Credit", "6864.58"},
		{"02-08-2024", "UPI Payment", "6000.00"},
	}, tables[0])
}

func TestSplitCellsUnsortedInput(t *testing.T) {
	texts := append(run(200, 0, "B"), run(10, 0, "A")...)

	assert.Equal(t, []string{"A", "B"}, splitCells(texts))
}

func TestSplitCellsZeroWidthRuns(t *testing.T) {
	texts := pdf.TextHorizontal{
		{X: 10, FontSize: 10, S: "4"},
		{X: 15, FontSize: 10, S: "2"},
		{X: 80, FontSize: 10, S: "x"},
	}

	assert.Equal(t, []string{"42", "x"}, splitCells(texts))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestReadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0644))

	_, err := Read(context.Background(), path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestReadStopsWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	orig := extractFile
	extractFile = func(path string) (*Content, error) {
		<-release
		return &Content{}, nil
	}
	t.Cleanup(func() { extractFile = orig })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Read(ctx, "stuck.pdf")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "stuck.pdf")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, filepath.Join(t.TempDir(), "missing.pdf"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrOpen))
}

func TestContentJSON(t *testing.T) {
	c := Content{Text: "a\n\nb", Tables: [][][]string{{{"h1", "h2"}, {"1", "2"}}}}

	payload, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"a\n\nb","tables":[[["h1","h2"],["1","2"]]]}`, string(payload))
}
