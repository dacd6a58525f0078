package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hashed, err := Password("1234")
	require.NoError(t, err)
	assert.NotEqual(t, "1234", hashed)

	assert.NoError(t, Verify("1234", hashed))
	assert.Error(t, Verify("wrong", hashed))
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := Password("1234")
	require.NoError(t, err)
	h2, err := Password("1234")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
