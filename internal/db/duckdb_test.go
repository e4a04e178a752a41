package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "data/icici/icici_sample.csv", want: "'data/icici/icici_sample.csv'"},
		{name: "quote", in: "o'brien.csv", want: "'o''brien.csv'"},
		{name: "empty", in: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteLiteral(tt.in))
		})
	}
}

func TestOpenIsIndependent(t *testing.T) {
	a, err := Open()
	require.NoError(t, err)
	defer a.Close()

	b, err := Open()
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Exec("CREATE TABLE only_in_a (x INTEGER)")
	require.NoError(t, err)

	_, err = b.Exec("SELECT * FROM only_in_a")
	assert.Error(t, err)
}
