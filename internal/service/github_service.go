package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"devconnector/internal/cache"
	"devconnector/internal/github"
	"devconnector/internal/middleware"
	"devconnector/internal/models"

	"go.uber.org/zap"
)

const msgNoGithubProfile = "No Github profile found"

// githubUsername matches GitHub logins: alphanumerics with single inner
// hyphens. Logins are at most maxGithubUsername characters.
var githubUsername = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9])*$`)

const maxGithubUsername = 39

// RepoFetcher fetches the raw repository listing of a GitHub user.
type RepoFetcher interface {
	UserRepos(ctx context.Context, username string) ([]byte, error)
}

type GithubService struct {
	fetcher RepoFetcher
	cache   *cache.Store
	ttl     time.Duration
}

// NewGithubService returns a GithubService. store may be nil to disable
// caching.
func NewGithubService(fetcher RepoFetcher, store *cache.Store, ttl time.Duration) *GithubService {
	return &GithubService{fetcher: fetcher, cache: store, ttl: ttl}
}

// Repos returns username's latest repositories as the raw JSON GitHub sent.
func (s *GithubService) Repos(ctx context.Context, username string) (json.RawMessage, error) {
	if len(username) > maxGithubUsername || !githubUsername.MatchString(username) {
		return nil, models.NewNotFoundMessage(msgNoGithubProfile)
	}

	key := cache.GithubReposKey(username)
	if s.ttl > 0 {
		body, found, err := s.cache.GetRaw(ctx, key)
		if err != nil {
			middleware.FromContext(ctx).Warn("github cache read failed", zap.String("key", key), zap.Error(err))
		}
		if found {
			return body, nil
		}
	}

	body, err := s.fetcher.UserRepos(ctx, username)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, models.NewNotFoundMessage(msgNoGithubProfile)
		}
		middleware.FromContext(ctx).Error("github lookup failed", zap.String("username", username), zap.Error(err))
		return nil, models.NewUpstreamUnavailableError(err)
	}

	if s.ttl > 0 {
		if err := s.cache.SetRaw(ctx, key, body, s.ttl); err != nil {
			middleware.FromContext(ctx).Warn("github cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return body, nil
}
