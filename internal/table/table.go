// Package table loads CSV files into typed, ordered tables through DuckDB and
// compares them cell by cell.
package table

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/strrl/statement-agent/internal/db"
)

// Table is an ordered result set. Types holds the DuckDB type name inferred
// for each column and is part of equality.
type Table struct {
	Columns []string
	Types   []string
	Rows    [][]any
}

// Shape returns the (rows, columns) pair.
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Columns)
}

// ShapeString renders the shape as "(rows, cols)".
func (t *Table) ShapeString() string {
	r, c := t.Shape()
	return fmt.Sprintf("(%d, %d)", r, c)
}

// LoadOption adjusts the read_csv_auto call.
type LoadOption func(*loadConfig)

type loadConfig struct {
	params []string
}

// RFC4180 pins the dialect to comma-separated, double-quoted fields instead
// of sniffing it. Type inference still applies.
func RFC4180() LoadOption {
	return func(c *loadConfig) {
		c.params = append(c.params, `delim = ','`, `quote = '"'`, `escape = '"'`)
	}
}

// LoadCSV reads a CSV file with a header row. Column types are inferred by
// read_csv_auto, so two files holding the same text load to equal tables.
func LoadCSV(ctx context.Context, conn *sql.DB, path string, opts ...LoadOption) (*Table, error) {
	cfg := loadConfig{params: []string{"header = true"}}
	for _, opt := range opts {
		opt(&cfg)
	}

	query := fmt.Sprintf("SELECT * FROM read_csv_auto(%s, %s)",
		db.QuoteLiteral(path), strings.Join(cfg.params, ", "))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	t := &Table{
		Columns: make([]string, len(colTypes)),
		Types:   make([]string, len(colTypes)),
	}
	for i, ct := range colTypes {
		t.Columns[i] = ct.Name()
		t.Types[i] = ct.DatabaseTypeName()
	}

	for rows.Next() {
		values := make([]any, len(colTypes))
		dest := make([]any, len(colTypes))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(t.Rows)+1, err)
		}
		t.Rows = append(t.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return t, nil
}

// Equal reports whether a and b have the same columns in the same order, the
// same column types, and the same values row by row. There is no tolerance
// for floating point differences.
func Equal(a, b *Table) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.DeepEqual(a.Columns, b.Columns) || !reflect.DeepEqual(a.Types, b.Types) {
		return false
	}
	if len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Rows {
		if len(a.Rows[i]) != len(b.Rows[i]) {
			return false
		}
		for j := range a.Rows[i] {
			if !valuesEqual(a.Rows[i][j], b.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	}
	return reflect.DeepEqual(a, b)
}

// Head renders the first n rows with a leading row index.
func (t *Table) Head(n int) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "\t%s\n", strings.Join(t.Columns, "\t"))
	for i, row := range t.Rows {
		if i >= n {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		fmt.Fprintf(w, "%d\t%s\n", i, strings.Join(cells, "\t"))
	}
	w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

// Record is one row keyed by column name. It marshals to a JSON object whose
// keys keep the table's column order.
type Record = *orderedmap.OrderedMap[string, any]

// Records returns the first n rows as column -> value records.
func (t *Table) Records(n int) []Record {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	records := make([]Record, 0, n)
	for _, row := range t.Rows[:n] {
		rec := orderedmap.New[string, any]()
		for j, col := range t.Columns {
			rec.Set(col, jsonValue(row[j]))
		}
		records = append(records, rec)
	}
	return records
}

// FormatValue renders a single cell for human-readable output.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case time.Time, []byte:
		return FormatValue(x)
	default:
		return x
	}
}
