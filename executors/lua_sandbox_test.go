package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSandboxedLua_ReadsNestedInputs(t *testing.T) {
	result, err := runSandboxedLua("inputs.user.age >= 18", map[string]interface{}{
		"user": map[string]interface{}{"age": float64(21)},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRunSandboxedLua_ArrayInputsRoundTrip(t *testing.T) {
	result, err := runSandboxedLua("#inputs.items", map[string]interface{}{
		"items": []interface{}{float64(1), float64(2), float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), result)
}

func TestRunSandboxedLua_SandboxHasNoIOLibrary(t *testing.T) {
	_, err := runSandboxedLua("io.open('/etc/passwd')", nil)
	assert.Error(t, err)
}
