package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolboxPDFContentHonoursCancel(t *testing.T) {
	box := NewToolbox(nil, nil, nil, Options{Target: "icici", PDFPath: "data/icici/icici_sample.pdf"})
	assert.Equal(t, DefaultPDFTimeout, box.PDFTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := box.PDFContent(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
