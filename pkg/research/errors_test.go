package research_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeFromWire(t *testing.T) {
	for _, err := range []error{research.ErrTopicTooLong, research.ErrInvalidArweaveTx, research.ErrAccountInUse, research.ErrArithmeticOverflow} {
		desc, ok := research.Describe(fmt.Errorf("op: %w", err))
		require.True(t, ok)
		assert.ErrorIs(t, research.FromWire(*desc), err)
	}

	_, ok := research.Describe(errors.New("other"))
	assert.False(t, ok)

	var pe *research.Error
	require.ErrorAs(t, research.FromWire(research.Error{Code: 7000, Name: "Mystery", Msg: "?"}), &pe)
	assert.Equal(t, uint32(7000), pe.Code)
}
