package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamPosition(t *testing.T) {
	a, err := StreamPosition("1700000000000-0")
	require.NoError(t, err)
	b, err := StreamPosition("1700000000000-1")
	require.NoError(t, err)
	c, err := StreamPosition("1700000000001-0")
	require.NoError(t, err)
	assert.Less(t, a, b)
	assert.Less(t, b, c)

	capped, err := StreamPosition("1700000000000-99999999")
	require.NoError(t, err)
	assert.Less(t, capped, c)

	for _, bad := range []string{"", "123", "x-1", "1-y"} {
		_, err := StreamPosition(bad)
		assert.Error(t, err, bad)
	}
}
