package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyAddrDisablesArchiving(t *testing.T) {
	a, err := New("", 0)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.False(t, a.Enabled())
}

func TestNilArchive_StoreIsNoop(t *testing.T) {
	var a *Archive
	err := a.Store(context.Background(), "run-1", map[string]string{"outcome": "COMPLETED"})
	assert.NoError(t, err)
}

func TestNilArchive_RecentRunIDsReturnsNil(t *testing.T) {
	var a *Archive
	ids, err := a.RecentRunIDs(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, ids)
}

func TestNilArchive_GetReturnsError(t *testing.T) {
	var a *Archive
	err := a.Get(context.Background(), "run-1", &struct{}{})
	assert.Error(t, err)
}

func TestNilArchive_CloseIsNoop(t *testing.T) {
	var a *Archive
	assert.NoError(t, a.Close())
}

func TestKeyConstants(t *testing.T) {
	assert.Equal(t, "taskrunner:run:", keyPrefix)
	assert.Equal(t, "taskrunner:runs", indexKey)
}
