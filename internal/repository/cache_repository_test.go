package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

func newMiniredisRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, mr := newMiniredisRepo(t)
	ctx := context.Background()

	book := models.Gradebook{ID: "gb-1", StudentID: "stu-1", Grades: models.Grades{
		GPA:         models.Undefined(),
		WeightedGPA: 4.2,
		Courses:     []models.Course{{Name: "AP Bio", Grade: models.Grade{Letter: "A", Raw: 95, Color: "green"}}},
	}}
	require.NoError(t, repo.Set(ctx, "gradebook:gb-1", book, time.Minute))
	assert.True(t, mr.Exists("gradebook:gb-1"))
	assert.Equal(t, time.Minute, mr.TTL("gradebook:gb-1"))

	var got models.Gradebook
	require.NoError(t, repo.Get(ctx, "gradebook:gb-1", &got))
	assert.Equal(t, "stu-1", got.StudentID)
	assert.False(t, got.Grades.GPA.Defined())
	assert.Equal(t, models.Score(4.2), got.Grades.WeightedGPA)
	assert.Equal(t, models.Score(95), got.Grades.Courses[0].Grade.Raw)

	require.NoError(t, repo.Delete(ctx, "gradebook:gb-1"))
	err := repo.Get(ctx, "gradebook:gb-1", &got)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryExpiry(t *testing.T) {
	repo, mr := newMiniredisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", map[string]int{"a": 1}, time.Second))
	mr.FastForward(2 * time.Second)

	var dest map[string]int
	assert.True(t, errors.Is(repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss))
}

func TestCacheRepositoryCorruptPayload(t *testing.T) {
	repo, mr := newMiniredisRepo(t)
	require.NoError(t, mr.Set("k", "{not json"))

	var dest map[string]int
	err := repo.Get(context.Background(), "k", &dest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest map[string]int
	assert.True(t, errors.Is(repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "k", 1, time.Second))
	assert.NoError(t, repo.Delete(ctx, "k"))
	assert.NoError(t, repo.Ping(ctx))
}
