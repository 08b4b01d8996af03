// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("BUNDLED_T_STR", "value")
	t.Setenv("BUNDLED_T_EMPTY", "")
	t.Setenv("BUNDLED_T_DUR", "750ms")
	t.Setenv("BUNDLED_T_BADDUR", "soon")
	t.Setenv("BUNDLED_T_BOOL", "No")
	t.Setenv("BUNDLED_T_BADBOOL", "maybe")

	assert.Equal(t, "value", ParseString("BUNDLED_T_STR", "def"))
	assert.Equal(t, "def", ParseString("BUNDLED_T_EMPTY", "def"))
	assert.Equal(t, "def", ParseString("BUNDLED_T_UNSET", "def"))

	assert.Equal(t, 750*time.Millisecond, ParseDuration("BUNDLED_T_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("BUNDLED_T_BADDUR", time.Second))

	assert.False(t, ParseBool("BUNDLED_T_BOOL", true))
	assert.True(t, ParseBool("BUNDLED_T_BADBOOL", true))
	assert.True(t, ParseBool("BUNDLED_T_EMPTY", true))
}
