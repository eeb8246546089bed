package service

import (
	"context"
	"time"

	"devconnector/internal/middleware"
	"devconnector/internal/models"
	"devconnector/internal/notifications"
	"devconnector/internal/observability"
	"devconnector/internal/repository"
	"devconnector/internal/validation"

	"go.uber.org/zap"
)

const (
	msgPostNotFound  = "Post not found."
	msgNotAuthorized = "User not authorized."
	msgUserNotFound  = "User not found."
)

type PostService struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	publisher notifications.Publisher
	deadline  deadline
}

type CreatePostInput struct {
	Text string `json:"text" validate:"notblank" label:"Text"`
}

// NewPostService wires the post use cases. publisher may be nil, in which
// case no realtime events are emitted.
func NewPostService(
	posts repository.PostRepository,
	users repository.UserRepository,
	publisher notifications.Publisher,
	storeTimeout time.Duration,
) *PostService {
	return &PostService{
		posts:     posts,
		users:     users,
		publisher: publisher,
		deadline:  deadline{timeout: storeTimeout},
	}
}

// CreatePost stores a post authored by userID. The author's name and avatar
// are copied onto the post.
func (s *PostService) CreatePost(ctx context.Context, userID string, in CreatePostInput) (*models.Post, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "PostService", "CreatePost")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	post, err := s.createPost(ctx, userID, in)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, notifications.EventPostCreated, post)
	return post, nil
}

func (s *PostService) createPost(ctx context.Context, userID string, in CreatePostInput) (*models.Post, error) {
	author, err := s.users.GetByID(ctx, userID)
	if isNotFound(err) {
		return nil, models.NewNotFoundMessage(msgUserNotFound)
	}
	if err != nil {
		return nil, storeError(err)
	}

	post := &models.Post{
		UserID: userID,
		Text:   in.Text,
		Name:   author.Name,
		Avatar: author.Avatar,
		Likes:  []models.Like{},
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, storeError(err)
	}
	return post, nil
}

// ListPosts returns every post, most recent first.
func (s *PostService) ListPosts(ctx context.Context) ([]*models.Post, error) {
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return posts, nil
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	return s.getPost(ctx, postID)
}

func (s *PostService) getPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if isNotFound(err) {
		return nil, models.NewNotFoundMessage(msgPostNotFound)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return post, nil
}

// DeletePost removes a post the caller authored. Existence and ownership
// are both checked before anything is written.
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) error {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "DeletePost")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	err := s.deletePost(ctx, userID, postID)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	s.broadcast(ctx, notifications.EventPostDeleted, map[string]string{"_id": postID})
	return nil
}

func (s *PostService) deletePost(ctx context.Context, userID, postID string) error {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return models.NewUnauthorizedError(msgNotAuthorized)
	}

	err = s.posts.Delete(ctx, postID)
	if isNotFound(err) {
		return models.NewNotFoundMessage(msgPostNotFound)
	}
	return storeError(err)
}

// LikePost adds the caller to the post's likes and returns the updated
// like sequence, newest first.
func (s *PostService) LikePost(ctx context.Context, userID, postID string) ([]models.Like, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "LikePost")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	post, likes, err := s.toggleLike(ctx, "like", userID, postID)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if post.UserID != userID {
		s.notifyUser(ctx, post.UserID, notifications.EventPostLiked, map[string]string{
			"post_id": postID,
			"user_id": userID,
		})
	}
	return likes, nil
}

// UnlikePost removes the caller from the post's likes and returns the
// updated like sequence.
func (s *PostService) UnlikePost(ctx context.Context, userID, postID string) ([]models.Like, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "UnlikePost")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	post, likes, err := s.toggleLike(ctx, "unlike", userID, postID)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if post.UserID != userID {
		s.notifyUser(ctx, post.UserID, notifications.EventPostUnliked, map[string]string{
			"post_id": postID,
			"user_id": userID,
		})
	}
	return likes, nil
}

// toggleLike applies a like or an unlike as a single conditional write.
// The write itself decides ALREADY_LIKED and NOT_LIKED, so two concurrent
// requests by the same user cannot both succeed.
func (s *PostService) toggleLike(ctx context.Context, action, userID, postID string) (*models.Post, []models.Like, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		observability.LikeToggles.WithLabelValues(action, "not_found").Inc()
		return nil, nil, err
	}

	var changed bool
	if action == "like" {
		changed, err = s.posts.AddLike(ctx, postID, userID)
	} else {
		changed, err = s.posts.RemoveLike(ctx, postID, userID)
	}
	if err != nil {
		observability.LikeToggles.WithLabelValues(action, "error").Inc()
		return nil, nil, storeError(err)
	}
	if !changed {
		observability.LikeToggles.WithLabelValues(action, "rejected").Inc()
		if action == "like" {
			return nil, nil, models.NewAlreadyLikedError()
		}
		return nil, nil, models.NewNotLikedError()
	}
	observability.LikeToggles.WithLabelValues(action, "ok").Inc()

	likes, err := s.posts.Likes(ctx, postID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return post, likes, nil
}

func (s *PostService) broadcast(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	ev := notifications.Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
	if err := s.publisher.PublishBroadcast(ctx, ev); err != nil {
		middleware.FromContext(ctx).Warn("failed to publish event",
			zap.String("event", eventType), zap.Error(err))
	}
}

func (s *PostService) notifyUser(ctx context.Context, userID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	ev := notifications.Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
	if err := s.publisher.PublishUser(ctx, userID, ev); err != nil {
		middleware.FromContext(ctx).Warn("failed to publish event",
			zap.String("event", eventType), zap.String("user_id", userID), zap.Error(err))
	}
}
