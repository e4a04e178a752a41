// Package schema describes the reference CSV a generated parser must reproduce.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/strrl/statement-agent/internal/table"
)

// SampleSize is the number of leading rows included in Info.SampleRows.
const SampleSize = 3

// Info is the expected-output summary handed to the model. DTypes and
// SampleRows keep the file's column order when marshalled.
type Info struct {
	Columns    []string                               `json:"columns"`
	Shape      [2]int                                 `json:"shape"`
	DTypes     *orderedmap.OrderedMap[string, string] `json:"dtypes"`
	SampleRows []table.Record                         `json:"sample_rows"`
}

// Read loads the reference CSV at path and summarizes it.
func Read(ctx context.Context, conn *sql.DB, path string) (*Info, error) {
	tbl, err := table.LoadCSV(ctx, conn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load expected table: %w", err)
	}
	return Describe(tbl), nil
}

// Describe summarizes an already loaded table.
func Describe(tbl *table.Table) *Info {
	rows, cols := tbl.Shape()

	dtypes := orderedmap.New[string, string]()
	for i, col := range tbl.Columns {
		dtypes.Set(col, tbl.Types[i])
	}

	return &Info{
		Columns:    append([]string(nil), tbl.Columns...),
		Shape:      [2]int{rows, cols},
		DTypes:     dtypes,
		SampleRows: tbl.Records(SampleSize),
	}
}
