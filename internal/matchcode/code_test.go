// internal/matchcode/code_test.go
package matchcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidCodes(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := New()
		require.NoError(t, err)
		assert.True(t, Valid(code), "generated code %q must validate", code)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("000000"))
	assert.True(t, Valid("948271"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("12345"))
	assert.False(t, Valid("1234567"))
	assert.False(t, Valid("12a456"))
	assert.False(t, Valid("12345 "))
}
