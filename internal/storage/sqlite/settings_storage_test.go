package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/models"
)

func TestSettingsStorageSetGetDelete(t *testing.T) {
	store := NewSettingsStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	key := models.ProjectTaskSettingKey("abc123", models.TaskPathFinder, "model")
	require.NoError(t, store.Set(ctx, key, "claude-opus"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", got)

	require.NoError(t, store.Set(ctx, key, "claude-sonnet"))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", got)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", all[key])

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrSettingNotFound)
}

func TestSettingsStorageGetMissingKey(t *testing.T) {
	store := NewSettingsStorage(newTestDB(t), arbor.NewLogger())
	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrSettingNotFound)
}
