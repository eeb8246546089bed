package repository

import (
	"context"
	"errors"

	"devconnector/internal/cache"
	"devconnector/internal/models"
	"devconnector/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	Delete(ctx context.Context, id string) error
	AddLike(ctx context.Context, postID, userID string) (bool, error)
	RemoveLike(ctx context.Context, postID, userID string) (bool, error)
	Likes(ctx context.Context, postID string) ([]models.Like, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewPostRepository creates a new post repository. store may be nil.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store, log: observability.NewRepoLogger("posts")}
}

func newestLikesFirst(db *gorm.DB) *gorm.DB {
	return db.Order("likes.id DESC")
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return mapError(err, "Post", post.ID)
	}
	if post.Likes == nil {
		post.Likes = []models.Like{}
	}
	r.log.LogWrite(ctx, "create", zap.String("id", post.ID))
	return nil
}

// GetByID returns the post with its likes, newest first. Identifiers that
// are not UUIDs cannot name a post and are reported as not found. Only the
// immutable post fields are cached; likes are always read from the store.
func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.NewNotFoundError("Post", id)
	}

	ctx, span := observability.StartRepositorySpan(ctx, "GetByID", "posts")
	defer span.End()

	var post models.Post
	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		defer observability.TrackQuery("get_by_id", "posts")()
		return r.db.WithContext(ctx).
			Where("id = ?", id).
			First(&post).Error
	})
	if errors.Is(err, cache.ErrTombstoned) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, mapError(err, "Post", id)
	}

	likes, err := r.Likes(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Likes = likes
	return &post, nil
}

// List returns every post, most recent first.
func (r *postRepository) List(ctx context.Context) ([]*models.Post, error) {
	defer observability.TrackQuery("list", "posts")()

	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("Likes", newestLikesFirst).
		Order("created_at DESC").
		Order("id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, mapError(err, "Post", nil)
	}
	return posts, nil
}

// Delete removes the post and its likes in one transaction.
func (r *postRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		r.log.LogError(ctx, err, "delete", zap.String("id", id))
		return mapError(err, "Post", id)
	}

	r.cache.Tombstone(ctx, cache.PostKey(id), cache.PostTTL)
	r.log.LogWrite(ctx, "delete", zap.String("id", id))
	return nil
}

// AddLike records userID's like on postID. It reports false, without
// error, when the like already existed.
func (r *postRepository) AddLike(ctx context.Context, postID, userID string) (bool, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "AddLike", "likes")
	defer span.End()

	like := &models.Like{PostID: postID, UserID: userID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "add_like", zap.String("post_id", postID))
		return false, mapError(res.Error, "Like", postID)
	}

	return res.RowsAffected > 0, nil
}

// RemoveLike deletes userID's like on postID. It reports false, without
// error, when there was no such like.
func (r *postRepository) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "RemoveLike", "likes")
	defer span.End()

	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "remove_like", zap.String("post_id", postID))
		return false, mapError(res.Error, "Like", postID)
	}

	return res.RowsAffected > 0, nil
}

// Likes returns the likes of postID, newest first.
func (r *postRepository) Likes(ctx context.Context, postID string) ([]models.Like, error) {
	likes := []models.Like{}
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("id DESC").
		Find(&likes).Error
	if err != nil {
		return nil, mapError(err, "Like", postID)
	}
	return likes, nil
}

func (r *postRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, mapError(err, "Post", userID)
	}
	return n, nil
}
