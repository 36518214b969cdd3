package images

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/cloudgallery/pkg/db/dbtest"
	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedImage(t *testing.T, repo *Repository, createdAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	row := &models.Image{
		ImageID:     id,
		Status:      enums.ImageStatusUploading,
		ContentType: "image/png",
		CreatedAt:   createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), row))
	return id
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t))
	id := seedImage(t, repo, time.Now().UTC())

	got, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, enums.ImageStatusUploading, got.Status)
	assert.Nil(t, got.Labels)
	assert.Nil(t, got.ThumbKey)
	assert.Nil(t, got.FailureReason)

	_, err = repo.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryMarkReadyIsGuarded(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	id := seedImage(t, repo, time.Now().UTC())

	applied, err := repo.MarkReady(ctx, id, []string{"Cat", "Pet"}, "thumb/"+id+".jpg")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkReady(ctx, id, []string{"Dog"}, "thumb/other.jpg")
	require.NoError(t, err)
	assert.False(t, applied, "second transition must be a no-op")

	applied, err = repo.MarkFailed(ctx, id, enums.FailureReasonDecode)
	require.NoError(t, err)
	assert.False(t, applied, "terminal records never reopen")

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.ImageStatusReady, got.Status)
	assert.Equal(t, []string{"Cat", "Pet"}, []string(got.Labels))
	require.NotNil(t, got.ThumbKey)
	assert.Equal(t, "thumb/"+id+".jpg", *got.ThumbKey)
	assert.Nil(t, got.FailureReason)
}

func TestRepositoryMarkReadyWithoutLabelsStoresEmptyList(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	id := seedImage(t, repo, time.Now().UTC())

	applied, err := repo.MarkReady(ctx, id, nil, "thumb/"+id+".jpg")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Labels)
	assert.Len(t, got.Labels, 0)
}

func TestRepositoryMarkFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	id := seedImage(t, repo, time.Now().UTC())

	applied, err := repo.MarkFailed(ctx, id, enums.FailureReasonFetch)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.ImageStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, enums.FailureReasonFetch, *got.FailureReason)
	assert.Nil(t, got.Labels)
	assert.Nil(t, got.ThumbKey)

	applied, err = repo.MarkFailed(ctx, uuid.NewString(), enums.FailureReasonFetch)
	require.NoError(t, err)
	assert.False(t, applied, "unknown ids are a no-op")
}

func TestRepositoryListAndListUploadingBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	now := time.Now().UTC()

	old := seedImage(t, repo, now.Add(-48*time.Hour))
	older := seedImage(t, repo, now.Add(-72*time.Hour))
	fresh := seedImage(t, repo, now)
	settled := seedImage(t, repo, now.Add(-96*time.Hour))
	_, err := repo.MarkFailed(ctx, settled, enums.FailureReasonDecode)
	require.NoError(t, err)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, row := range all {
		ids = append(ids, row.ImageID)
	}
	assert.ElementsMatch(t, []string{old, older, fresh, settled}, ids)

	stale, err := repo.ListUploadingBefore(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older, stale[0].ImageID)
	assert.Equal(t, old, stale[1].ImageID)

	limited, err := repo.ListUploadingBefore(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, older, limited[0].ImageID)
}
