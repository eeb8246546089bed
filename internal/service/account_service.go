package service

import (
	"context"
	"time"

	"devconnector/internal/middleware"
	"devconnector/internal/observability"
	"devconnector/internal/repository"

	"go.uber.org/zap"
)

type AccountService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	deadline deadline
}

func NewAccountService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	posts repository.PostRepository,
	storeTimeout time.Duration,
) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		posts:    posts,
		deadline: deadline{timeout: storeTimeout},
	}
}

// DeleteAccount removes the user's profile, if any, and then the user.
// The two deletes are not atomic; a failure after the first leaves the user
// without a profile, and repeating the call completes the job. Posts and
// likes authored by the user are kept.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	ctx, span := observability.StartServiceSpan(ctx, "AccountService", "DeleteAccount")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	err := s.deleteAccount(ctx, userID)
	observability.EndSpan(span, err)
	return err
}

func (s *AccountService) deleteAccount(ctx context.Context, userID string) error {
	log := middleware.FromContext(ctx)

	hadProfile, err := s.profiles.DeleteByUserID(ctx, userID)
	if err != nil {
		return storeError(err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return storeError(err)
	}

	fields := []zap.Field{zap.String("user_id", userID), zap.Bool("had_profile", hadProfile)}
	n, err := s.posts.CountByUser(ctx, userID)
	switch {
	case err != nil:
		log.Warn("account deleted, could not count surviving posts", append(fields, zap.Error(err))...)
	case n > 0:
		log.Warn("account deleted, authored posts kept", append(fields, zap.Int64("surviving_posts", n))...)
	default:
		log.Info("account deleted", fields...)
	}
	return nil
}
