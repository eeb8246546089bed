package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"devconnector/internal/cache"
	"devconnector/internal/github"
	"devconnector/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherStub struct {
	calls int
	body  []byte
	err   error
}

func (f *fetcherStub) UserRepos(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func newGithubCache(t *testing.T) (*miniredis.Miniredis, *cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, cache.NewStore(rdb, "github")
}

func TestGithubService_Repos_CachesBody(t *testing.T) {
	mr, store := newGithubCache(t)
	fetcher := &fetcherStub{body: []byte(`[{"name":"dotfiles"}]`)}
	svc := NewGithubService(fetcher, store, time.Minute)
	ctx := context.Background()

	body, err := svc.Repos(ctx, "Octocat")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"dotfiles"}]`, string(body))

	body, err = svc.Repos(ctx, "octocat")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"dotfiles"}]`, string(body))
	assert.Equal(t, 1, fetcher.calls)

	assert.True(t, mr.Exists(cache.GithubReposKey("octocat")))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL(cache.GithubReposKey("octocat")).Seconds(), 1)
}

func TestGithubService_Repos_NoCache(t *testing.T) {
	fetcher := &fetcherStub{body: []byte(`[]`)}
	svc := NewGithubService(fetcher, nil, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := svc.Repos(context.Background(), "octocat")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fetcher.calls)
}

func TestGithubService_Repos_Errors(t *testing.T) {
	tests := []struct {
		name     string
		username string
		err      error
		code     string
		calls    int
	}{
		{"github 404", "ghost", github.ErrNotFound, models.CodeNotFound, 1},
		{"upstream down", "octocat", &github.UpstreamError{Err: errors.New("503")}, models.CodeUpstreamUnavailable, 1},
		{"invalid username", "../etc/passwd", nil, models.CodeNotFound, 0},
		{"leading hyphen", "-octo", nil, models.CodeNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, store := newGithubCache(t)
			fetcher := &fetcherStub{err: tt.err}
			svc := NewGithubService(fetcher, store, time.Minute)

			_, err := svc.Repos(context.Background(), tt.username)
			appErr := assertCode(t, err, tt.code)
			if tt.code == models.CodeNotFound {
				assert.Equal(t, "No Github profile found", appErr.Message)
			}
			assert.Equal(t, tt.calls, fetcher.calls)
		})
	}
}

func TestGithubService_Repos_FailuresAreNotCached(t *testing.T) {
	mr, store := newGithubCache(t)
	fetcher := &fetcherStub{err: github.ErrNotFound}
	svc := NewGithubService(fetcher, store, time.Minute)

	_, err := svc.Repos(context.Background(), "ghost")
	require.Error(t, err)
	assert.False(t, mr.Exists(cache.GithubReposKey("ghost")))
}
