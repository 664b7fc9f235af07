package util_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcifyeth/chain-monitor/util"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() { os.Unsetenv(key) })
}

func TestEnv_String(t *testing.T) {
	withEnv(t, "UTIL_TEST_STRING", "hello")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	v, ok := env.String("UTIL_TEST_STRING")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = env.String("UTIL_TEST_MISSING")
	assert.False(t, ok)
}

func TestEnv_MustString(t *testing.T) {
	withEnv(t, "UTIL_TEST_MUST", "set")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "set", env.MustString("UTIL_TEST_MUST", "default"))
	assert.Equal(t, "default", env.MustString("UTIL_TEST_MUST_UNSET", "default"))
}

func TestEnv_Float64(t *testing.T) {
	withEnv(t, "UTIL_TEST_FLOAT", "1.5")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 1.5, env.Float64("UTIL_TEST_FLOAT", 9.9))
	assert.Equal(t, 9.9, env.Float64("UTIL_TEST_FLOAT_UNSET", 9.9))
}

func TestEnv_Float64_FallsBackOnUnparsable(t *testing.T) {
	withEnv(t, "UTIL_TEST_FLOAT_BAD", "not-a-number")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 3.3, env.Float64("UTIL_TEST_FLOAT_BAD", 3.3))
}

func TestEnv_Duration(t *testing.T) {
	withEnv(t, "UTIL_TEST_DURATION", "2500")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, env.Duration("UTIL_TEST_DURATION", 1000))
	assert.Equal(t, 1000*time.Millisecond, env.Duration("UTIL_TEST_DURATION_UNSET", 1000))
}

func TestEnv_Int(t *testing.T) {
	withEnv(t, "UTIL_TEST_INT", "42")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 42, env.Int("UTIL_TEST_INT", 0))
	assert.Equal(t, 7, env.Int("UTIL_TEST_INT_UNSET", 7))
}

func TestEnv_StringSlice(t *testing.T) {
	withEnv(t, "UTIL_TEST_SLICE", "a, b,c")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, env.StringSlice("UTIL_TEST_SLICE"))
	assert.Nil(t, env.StringSlice("UTIL_TEST_SLICE_UNSET"))
}
