package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/google/uuid"

	"github.com/foundryhq/jobengine/internal/models"
)

func TestSessionStorageCreateGetUpdateDelete(t *testing.T) {
	store := NewSessionStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	session := &models.Session{
		ID:               uuid.New().String(),
		ProjectDirectory: "/repo",
		ProjectHash:      "abc123",
		Name:             "refactor auth",
		IncludedFiles:    []string{"a.go", "b.go"},
		UpdatedAt:        models.NowMillis(),
	}
	require.NoError(t, store.Create(ctx, session))

	got, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Name, got.Name)
	assert.Equal(t, []string{"a.go", "b.go"}, got.IncludedFiles)

	got.Name = "renamed"
	got.IncludedFiles = append(got.IncludedFiles, "c.go")
	require.NoError(t, store.Update(ctx, got))

	reloaded, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Name)
	assert.Len(t, reloaded.IncludedFiles, 3)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, session.ID))
	_, err = store.GetByID(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStorageGetByIDMissing(t *testing.T) {
	store := NewSessionStorage(newTestDB(t), arbor.NewLogger())
	_, err := store.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
