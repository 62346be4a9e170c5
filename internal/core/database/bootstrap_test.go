package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBootstrap(t *testing.T) {
	script, err := renderBootstrap(768)
	require.NoError(t, err)

	assert.Contains(t, script, "vector(768)")
	assert.NotContains(t, script, "{{EMBED_DIM}}")
	assert.Contains(t, script, "ON DELETE CASCADE")
	assert.Contains(t, script, "UNIQUE (document_id, chunk_index)")
}

func TestRenderBootstrap_RejectsZeroDim(t *testing.T) {
	_, err := renderBootstrap(0)
	assert.Error(t, err)
}
