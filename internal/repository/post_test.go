package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"devconnector/internal/cache"
	"devconnector/internal/models"
	"devconnector/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPostRepo(t *testing.T, store *cache.Store) (PostRepository, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewPostRepository(db, store), db
}

func createPost(t *testing.T, repo PostRepository, userID, text string, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{UserID: userID, Text: text, Name: "ada", CreatedAt: at}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestPostRepository_ListNewestFirst(t *testing.T) {
	repo, _ := newPostRepo(t, nil)
	base := time.Now().Add(-time.Hour)

	createPost(t, repo, "u1", "A", base)
	createPost(t, repo, "u1", "B", base.Add(time.Minute))
	createPost(t, repo, "u2", "C", base.Add(2*time.Minute))

	posts, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{posts[0].Text, posts[1].Text, posts[2].Text})
	assert.NotNil(t, posts[0].Likes)
}

func TestPostRepository_GetByID(t *testing.T) {
	repo, _ := newPostRepo(t, nil)
	ctx := context.Background()
	p := createPost(t, repo, "u1", "hello", time.Now())

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Empty(t, got.Likes)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPostRepository_LikeToggle(t *testing.T) {
	repo, _ := newPostRepo(t, nil)
	ctx := context.Background()
	p := createPost(t, repo, "author", "hello", time.Now())

	added, err := repo.AddLike(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddLike(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.False(t, added, "second like by the same user is a no-op")

	added, err = repo.AddLike(ctx, p.ID, "u2")
	require.NoError(t, err)
	assert.True(t, added)

	likes, err := repo.Likes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, likes, 2)
	assert.Equal(t, "u2", likes[0].UserID, "newest like first")
	assert.Equal(t, "u1", likes[1].UserID)

	removed, err := repo.RemoveLike(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveLike(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Likes, 1)
	assert.True(t, got.LikedBy("u2"))
}

func TestPostRepository_DeleteRemovesLikes(t *testing.T) {
	repo, db := newPostRepo(t, nil)
	ctx := context.Background()
	p := createPost(t, repo, "author", "bye", time.Now())
	_, err := repo.AddLike(ctx, p.ID, "u1")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, p.ID))

	var n int64
	require.NoError(t, db.Model(&models.Like{}).Where("post_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)

	err = repo.Delete(ctx, p.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPostRepository_CountByUser(t *testing.T) {
	repo, _ := newPostRepo(t, nil)
	createPost(t, repo, "u1", "one", time.Now())
	createPost(t, repo, "u1", "two", time.Now())
	createPost(t, repo, "u2", "three", time.Now())

	n, err := repo.CountByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func newCachedPostRepo(t *testing.T) (PostRepository, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	repo, db := newPostRepo(t, cache.NewStore(rdb, "post"))
	return repo, db, mr
}

func TestPostRepository_CachedPostKeepsLikesFresh(t *testing.T) {
	repo, _, mr := newCachedPostRepo(t)
	ctx := context.Background()
	p := createPost(t, repo, "author", "cached", time.Now())

	_, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.PostKey(p.ID)))

	_, err = repo.AddLike(ctx, p.ID, "u1")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.LikedBy("u1"))

	_, err = repo.RemoveLike(ctx, p.ID, "u1")
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes)
}

func TestPostRepository_DeletedPostNotServedFromCache(t *testing.T) {
	repo, _, _ := newCachedPostRepo(t)
	ctx := context.Background()
	p := createPost(t, repo, "author", "gone", time.Now())

	_, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, p.ID))

	_, err = repo.GetByID(ctx, p.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPostRepository_DeleteBetweenReadAndCacheFill(t *testing.T) {
	repo, db, _ := newCachedPostRepo(t)
	ctx := context.Background()
	p := createPost(t, repo, "author", "racy", time.Now())

	var once sync.Once
	err := db.Callback().Query().After("gorm:after_query").Register("test:delete_after_read", func(tx *gorm.DB) {
		if tx.Statement.Table != "posts" {
			return
		}
		once.Do(func() {
			require.NoError(t, repo.Delete(context.Background(), p.ID))
		})
	})
	require.NoError(t, err)

	// The first read saw the row before it was deleted.
	_, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, p.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPostRepository_AddLikeOnDeletedPostIsNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "likes"`)).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "insert or update on table \"likes\" violates foreign key constraint"})
	mock.ExpectRollback()

	_, err := repo.AddLike(context.Background(), uuid.NewString(), "u1")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
