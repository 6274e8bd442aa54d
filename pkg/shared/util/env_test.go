package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupEnvBoolOr(t *testing.T) {
	assert.True(t, LookupEnvBoolOr("fake_env", true))
	t.Setenv("BATCHQ_TEST_BOOL", "false")
	assert.False(t, LookupEnvBoolOr("BATCHQ_TEST_BOOL", true))
	t.Setenv("BATCHQ_TEST_BOOL", "nope")
	assert.Panics(t, func() { _ = LookupEnvBoolOr("BATCHQ_TEST_BOOL", true) })
}
