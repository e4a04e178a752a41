package schema

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/statement-agent/internal/db"
)

const sampleCSV = `Date,Description,Debit Amt,Credit Amt,Balance
01-08-2024,Salary Credit XYZ Pvt Ltd,,1935.3,6864.58
02-08-2024,Salary Credit XYZ Pvt Ltd,,1652.61,8517.19
03-08-2024,IMPS UPI Payment Amazon,2000.0,,6517.19
14-08-2024,Mobile Recharge Via UPI,1274.76,,5242.43
`

func TestRead(t *testing.T) {
	conn, err := db.Open()
	require.NoError(t, err)
	defer conn.Close()

	path := filepath.Join(t.TempDir(), "icici_sample.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	info, err := Read(context.Background(), conn, path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description", "Debit Amt", "Credit Amt", "Balance"}, info.Columns)
	assert.Equal(t, [2]int{4, 5}, info.Shape)
	balance, _ := info.DTypes.Get("Balance")
	assert.Equal(t, "DOUBLE", balance)
	description, _ := info.DTypes.Get("Description")
	assert.Equal(t, "VARCHAR", description)
	require.Len(t, info.SampleRows, SampleSize)
	desc, ok := info.SampleRows[2].Get("Description")
	require.True(t, ok)
	assert.Equal(t, "IMPS UPI Payment Amazon", desc)
	debit, ok := info.SampleRows[0].Get("Debit Amt")
	require.True(t, ok)
	assert.Nil(t, debit)

	payload, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"shape":[4,5]`)
	assert.Contains(t, string(payload), `"sample_rows":[`)
}

func TestReadKeepsColumnOrder(t *testing.T) {
	conn, err := db.Open()
	require.NoError(t, err)
	defer conn.Close()

	path := filepath.Join(t.TempDir(), "icici_sample.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	info, err := Read(context.Background(), conn, path)
	require.NoError(t, err)

	payload, err := json.Marshal(info)
	require.NoError(t, err)
	out := string(payload)

	for _, section := range []string{`"dtypes":`, `"sample_rows":`} {
		rest := out[strings.Index(out, section):]
		prev := -1
		for _, col := range info.Columns {
			idx := strings.Index(rest, `"`+col+`":`)
			require.GreaterOrEqual(t, idx, 0, "%s missing in %s", col, section)
			assert.Greater(t, idx, prev, "%s out of order in %s", col, section)
			prev = idx
		}
	}
}

func TestReadMalformed(t *testing.T) {
	conn, err := db.Open()
	require.NoError(t, err)
	defer conn.Close()

	_, err = Read(context.Background(), conn, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
