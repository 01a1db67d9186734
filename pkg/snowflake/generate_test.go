package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID(t *testing.T) {
	require.NoError(t, Init(3, 1))

	first, err := NextID()
	require.NoError(t, err)
	second, err := NextID()
	require.NoError(t, err)
	assert.Greater(t, second, first)

	batch, err := NextBatchID()
	require.NoError(t, err)
	assert.NotEmpty(t, batch)
}
