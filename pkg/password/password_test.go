package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	h, err := Hash("secret123")
	require.NoError(t, err)
	assert.True(t, Verify("secret123", h))
	assert.False(t, Verify("secret124", h))

	_, err = Hash("abc")
	assert.ErrorIs(t, err, ErrTooShort)
}
