package envutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenvDefault(t *testing.T) {
	const name = "TC_ENVUTIL_TEST_VALUE"
	os.Unsetenv(name)
	assert.Equal(t, "fallback", GetenvDefault(name, "fallback"))

	require.NoError(t, os.Setenv(name, "set"))
	defer os.Unsetenv(name)
	assert.Equal(t, "set", GetenvDefault(name, "fallback"))
}
