// SPDX-License-Identifier: MIT

package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_DevMenuRequiresSupportAndHandler(t *testing.T) {
	h := NewHost()
	assert.ErrorIs(t, h.ShowDevMenu(context.Background()), ErrDevMenuUnavailable)

	shown := 0
	require.NoError(t, h.OnDevMenu(func(context.Context) error { shown++; return nil }))
	assert.ErrorIs(t, h.ShowDevMenu(context.Background()), ErrDevMenuUnavailable)

	require.NoError(t, h.EnableDeveloperSupport())
	require.NoError(t, h.ShowDevMenu(context.Background()))
	assert.Equal(t, 1, shown)
	assert.True(t, h.DeveloperSupport())
}

func TestHost_Reload(t *testing.T) {
	h := NewHost()
	assert.ErrorIs(t, h.RequestReload(context.Background()), ErrNoReloadHandler)
	assert.ErrorIs(t, h.OnReload(nil), ErrNilHandler)

	reloaded := false
	require.NoError(t, h.OnReload(func(context.Context) error { reloaded = true; return nil }))
	require.NoError(t, h.RequestReload(context.Background()))
	assert.True(t, reloaded)
}
