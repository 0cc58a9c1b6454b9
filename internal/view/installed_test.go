package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

func TestCachedViewServesFromCache(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim"}

	v := NewCached(fake)

	list, err := v.Installed(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = v.Installed(context.Background())
	require.NoError(t, err)

	calls := 0
	for _, c := range fake.CallsMade() {
		if c == "installed" {
			calls++
		}
	}
	assert.Equal(t, 1, calls, "second read must come from the cache")
}

func TestCachedViewRefetchesAfterInvalidate(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim"}

	v := NewCached(fake)
	_, err := v.Installed(context.Background())
	require.NoError(t, err)

	delete(fake.Locals, "vim")
	v.Invalidate()

	list, err := v.Installed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
