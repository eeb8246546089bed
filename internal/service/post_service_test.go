package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"devconnector/internal/models"
	"devconnector/internal/notifications"
	"devconnector/internal/repository"
	"devconnector/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type publishedEvent struct {
	userID string
	event  notifications.Event
}

// recordingPublisher captures events instead of sending them to Redis.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishUser(_ context.Context, userID string, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, event: ev})
	return p.err
}

func (p *recordingPublisher) PublishBroadcast(_ context.Context, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{event: ev})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

type postFixture struct {
	svc   *PostService
	db    *gorm.DB
	pub   *recordingPublisher
	alice *models.User
	bob   *models.User
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &recordingPublisher{}
	svc := NewPostService(
		repository.NewPostRepository(db, nil),
		repository.NewUserRepository(db),
		pub,
		time.Second,
	)
	return &postFixture{
		svc:   svc,
		db:    db,
		pub:   pub,
		alice: testutil.CreateUser(t, db, "alice"),
		bob:   testutil.CreateUser(t, db, "bob"),
	}
}

func (f *postFixture) createPost(t *testing.T, author *models.User, text string) *models.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), author.ID, CreatePostInput{Text: text})
	require.NoError(t, err)
	return post
}

func TestPostService_CreatePost_CopiesAuthor(t *testing.T) {
	f := newPostFixture(t)

	post := f.createPost(t, f.alice, "hello world")
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, f.alice.ID, post.UserID)
	assert.Equal(t, "alice", post.Name)
	assert.Equal(t, f.alice.Avatar, post.Avatar)
	assert.NotNil(t, post.Likes)
	assert.Empty(t, post.Likes)

	// Renaming the author later does not touch existing posts.
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.alice.ID).Update("name", "alicia").Error)
	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	assert.Equal(t, []string{notifications.EventPostCreated}, f.pub.types())
}

func TestPostService_CreatePost_Validation(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.CreatePost(context.Background(), f.alice.ID, CreatePostInput{Text: "  "})
	appErr := assertCode(t, err, models.CodeValidation)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "text", appErr.Fields[0].Field)
	assert.Equal(t, "Text is required", appErr.Fields[0].Message)
	assert.Empty(t, f.pub.types())
}

func TestPostService_CreatePost_UnknownAuthor(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.CreatePost(context.Background(), uuid.NewString(), CreatePostInput{Text: "hi"})
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_ListPosts_NewestFirst(t *testing.T) {
	f := newPostFixture(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"A", "B", "C"} {
		p := f.createPost(t, f.alice, text)
		require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", p.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	posts, err := f.svc.ListPosts(context.Background())
	require.NoError(t, err)
	texts := make([]string, 0, len(posts))
	for _, p := range posts {
		texts = append(texts, p.Text)
	}
	assert.Equal(t, []string{"C", "B", "A"}, texts)
}

func TestPostService_GetPost_NotFound(t *testing.T) {
	f := newPostFixture(t)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := f.svc.GetPost(context.Background(), id)
		appErr := assertCode(t, err, models.CodeNotFound)
		assert.Equal(t, "Post not found.", appErr.Message)
	}
}

func TestPostService_LikeUnlike(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "likeable")

	likes, err := f.svc.LikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, f.bob.ID, likes[0].UserID)

	_, err = f.svc.LikePost(ctx, f.bob.ID, post.ID)
	appErr := assertCode(t, err, models.CodeAlreadyLiked)
	assert.Equal(t, "Post already liked.", appErr.Message)

	likes, err = f.svc.UnlikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)
	assert.Empty(t, likes)

	_, err = f.svc.UnlikePost(ctx, f.bob.ID, post.ID)
	appErr = assertCode(t, err, models.CodeNotLiked)
	assert.Equal(t, "Post has not yet been liked.", appErr.Message)
}

func TestPostService_UnlikeNeverLiked(t *testing.T) {
	f := newPostFixture(t)
	post := f.createPost(t, f.alice, "quiet")

	_, err := f.svc.UnlikePost(context.Background(), f.bob.ID, post.ID)
	assertCode(t, err, models.CodeNotLiked)
}

func TestPostService_LikePost_NewestLikeFirst(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "popular")

	_, err := f.svc.LikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)
	likes, err := f.svc.LikePost(ctx, f.alice.ID, post.ID)
	require.NoError(t, err)

	require.Len(t, likes, 2)
	assert.Equal(t, f.alice.ID, likes[0].UserID)
	assert.Equal(t, f.bob.ID, likes[1].UserID)

	got, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, got.Likes, 2)
	assert.Equal(t, f.alice.ID, got.Likes[0].UserID)
}

func TestPostService_LikePost_MissingPost(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.LikePost(context.Background(), f.bob.ID, uuid.NewString())
	assertCode(t, err, models.CodeNotFound)
	_, err = f.svc.UnlikePost(context.Background(), f.bob.ID, "bogus")
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_LikePost_ConcurrentSameUser(t *testing.T) {
	f := newPostFixture(t)
	post := f.createPost(t, f.alice, "race")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.LikePost(context.Background(), f.bob.ID, post.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, models.CodeAlreadyLiked, models.ErrorCode(err))
	}
	assert.Equal(t, 1, ok)

	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Len(t, got.Likes, 1)
}

func TestPostService_LikePost_ConcurrentDistinctUsers(t *testing.T) {
	f := newPostFixture(t)
	post := f.createPost(t, f.alice, "popular")

	const n = 8
	fans := make([]*models.User, n)
	for i := range fans {
		fans[i] = testutil.CreateUser(t, f.db, fmt.Sprintf("fan%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, fan := range fans {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.svc.LikePost(context.Background(), userID, post.ID)
			errs <- err
		}(fan.ID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, got.Likes, n)
	for _, fan := range fans {
		assert.True(t, got.LikedBy(fan.ID))
	}
}

func TestPostService_LikePost_NotifiesAuthor(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "notify me")

	_, err := f.svc.LikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)
	// Liking your own post is not announced.
	_, err = f.svc.LikePost(ctx, f.alice.ID, post.ID)
	require.NoError(t, err)
	_, err = f.svc.UnlikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.events, 3)
	assert.Equal(t, notifications.EventPostLiked, f.pub.events[1].event.Type)
	assert.Equal(t, f.alice.ID, f.pub.events[1].userID)
	assert.Equal(t, notifications.EventPostUnliked, f.pub.events[2].event.Type)
	assert.Equal(t, f.alice.ID, f.pub.events[2].userID)
}

func TestPostService_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newPostFixture(t)
	f.pub.err = errors.New("redis down")

	post := f.createPost(t, f.alice, "still saved")
	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "still saved", got.Text)
}

func TestPostService_DeletePost_Owner(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "bye")
	_, err := f.svc.LikePost(ctx, f.bob.ID, post.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePost(ctx, f.alice.ID, post.ID))

	_, err = f.svc.GetPost(ctx, post.ID)
	assertCode(t, err, models.CodeNotFound)

	var likes int64
	require.NoError(t, f.db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likes).Error)
	assert.Zero(t, likes)
	assert.Contains(t, f.pub.types(), notifications.EventPostDeleted)
}

func TestPostService_DeletePost_NonOwner(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "mine")

	err := f.svc.DeletePost(ctx, f.bob.ID, post.ID)
	appErr := assertCode(t, err, models.CodeUnauthorized)
	assert.Equal(t, "User not authorized.", appErr.Message)

	got, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Text)
}

func TestPostService_DeletePost_Missing(t *testing.T) {
	f := newPostFixture(t)

	err := f.svc.DeletePost(context.Background(), f.alice.ID, uuid.NewString())
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_NilPublisher(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPostService(repository.NewPostRepository(db, nil), repository.NewUserRepository(db), nil, 0)
	user := testutil.CreateUser(t, db, "carol")

	post, err := svc.CreatePost(context.Background(), user.ID, CreatePostInput{Text: "no events"})
	require.NoError(t, err)
	_, err = svc.LikePost(context.Background(), user.ID, post.ID)
	require.NoError(t, err)
}
