package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"devconnector/internal/models"
	"devconnector/internal/repository"
	"devconnector/internal/testutil"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// profileRepoStub is a stub for repository.ProfileRepository.
type profileRepoStub struct {
	getByUserIDFn    func(context.Context, string) (*models.Profile, error)
	listFn           func(context.Context) ([]*models.Profile, error)
	upsertFn         func(context.Context, string, models.ProfilePatch) (*models.Profile, error)
	saveSequencesFn  func(context.Context, *models.Profile) error
	deleteByUserIDFn func(context.Context, string) (bool, error)
}

func (s *profileRepoStub) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return s.getByUserIDFn(ctx, userID)
}
func (s *profileRepoStub) List(ctx context.Context) ([]*models.Profile, error) {
	return s.listFn(ctx)
}
func (s *profileRepoStub) Upsert(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	return s.upsertFn(ctx, userID, patch)
}
func (s *profileRepoStub) SaveSequences(ctx context.Context, profile *models.Profile) error {
	return s.saveSequencesFn(ctx, profile)
}
func (s *profileRepoStub) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	return s.deleteByUserIDFn(ctx, userID)
}

func noopProfileRepo() *profileRepoStub {
	return &profileRepoStub{
		getByUserIDFn: func(_ context.Context, userID string) (*models.Profile, error) {
			return &models.Profile{ID: "p1", UserID: userID, Status: "Developer"}, nil
		},
		listFn: func(_ context.Context) ([]*models.Profile, error) { return nil, nil },
		upsertFn: func(_ context.Context, _ string, _ models.ProfilePatch) (*models.Profile, error) {
			return &models.Profile{}, nil
		},
		saveSequencesFn:  func(_ context.Context, _ *models.Profile) error { return nil },
		deleteByUserIDFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
}

// assertCode asserts that err is an AppError with the given code.
func assertCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func fieldNames(appErr *models.AppError) []string {
	names := make([]string, 0, len(appErr.Fields))
	for _, f := range appErr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func newTestProfileService(t *testing.T) (*ProfileService, *gorm.DB, *models.User) {
	t.Helper()
	db := testutil.NewTestDB(t)
	users := repository.NewUserRepository(db)
	svc := NewProfileService(repository.NewProfileRepository(db, users), time.Second)
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return svc, db, testutil.CreateUser(t, db, "alice")
}

func createProfile(t *testing.T, svc *ProfileService, userID string) *models.Profile {
	t.Helper()
	p, err := svc.UpsertProfile(context.Background(), userID, UpsertProfileInput{Status: "Developer", Skills: "go"})
	require.NoError(t, err)
	return p
}

func experienceTitles(p *models.Profile) []string {
	out := make([]string, 0, len(p.Experience))
	for _, e := range p.Experience {
		out = append(out, e.Title)
	}
	return out
}

func TestProfileService_UpsertProfile_CreatesThenUpdates(t *testing.T) {
	svc, db, user := newTestProfileService(t)
	ctx := context.Background()

	created, err := svc.UpsertProfile(ctx, user.ID, UpsertProfileInput{
		Status:  "Developer",
		Skills:  "go, rust",
		Company: "Acme",
		Twitter: "https://twitter.com/alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, []string(created.Skills))
	assert.Equal(t, "Acme", created.Company)
	assert.Equal(t, user.Name, created.User.Name)
	assert.Equal(t, user.Avatar, created.User.Avatar)

	updated, err := svc.UpsertProfile(ctx, user.ID, UpsertProfileInput{
		Status:  "Senior Developer",
		Skills:  "go",
		Youtube: "https://youtube.com/alice",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Senior Developer", updated.Status)
	assert.Equal(t, []string{"go"}, []string(updated.Skills))
	// Fields absent from the second request keep their values.
	assert.Equal(t, "Acme", updated.Company)
	assert.Equal(t, "https://twitter.com/alice", updated.Social.Twitter)
	assert.Equal(t, "https://youtube.com/alice", updated.Social.Youtube)

	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProfileService_UpsertProfile_KeepsSequences(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()
	createProfile(t, svc, user.ID)

	_, err := svc.AddExperience(ctx, user.ID, AddExperienceInput{Title: "Eng", Company: "Acme", From: "2019-01-01"})
	require.NoError(t, err)

	p, err := svc.UpsertProfile(ctx, user.ID, UpsertProfileInput{Status: "Lead", Skills: "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Eng"}, experienceTitles(p))
}

func TestProfileService_UpsertProfile_Validation(t *testing.T) {
	svc, _, user := newTestProfileService(t)

	tests := []struct {
		name   string
		in     UpsertProfileInput
		fields []string
	}{
		{"both missing", UpsertProfileInput{}, []string{"status", "skills"}},
		{"blank status", UpsertProfileInput{Status: "   ", Skills: "go"}, []string{"status"}},
		{"only separators", UpsertProfileInput{Status: "Dev", Skills: " , ,"}, []string{"skills"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertProfile(context.Background(), user.ID, tt.in)
			appErr := assertCode(t, err, models.CodeValidation)
			assert.Equal(t, tt.fields, fieldNames(appErr))
		})
	}
}

func TestProfileService_GetOwnProfile(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()

	_, err := svc.GetOwnProfile(ctx, user.ID)
	appErr := assertCode(t, err, models.CodeNotFound)
	assert.Equal(t, "There is no profile for this user", appErr.Message)

	createProfile(t, svc, user.ID)
	p, err := svc.GetOwnProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.User.ID)
	assert.Empty(t, p.Experience)
	assert.NotNil(t, p.Education)
}

func TestProfileService_GetProfileByUserID(t *testing.T) {
	svc, db, user := newTestProfileService(t)
	createProfile(t, svc, user.ID)
	other := testutil.CreateUser(t, db, "bob")

	p, err := svc.GetProfileByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.User.Name)

	_, err = svc.GetProfileByUserID(context.Background(), other.ID)
	appErr := assertCode(t, err, models.CodeNotFound)
	assert.Equal(t, "Profile not found.", appErr.Message)
}

func TestProfileService_ListProfiles(t *testing.T) {
	svc, db, alice := newTestProfileService(t)
	bob := testutil.CreateUser(t, db, "bob")
	createProfile(t, svc, alice.ID)
	createProfile(t, svc, bob.ID)

	profiles, err := svc.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	names := []string{profiles[0].User.Name, profiles[1].User.Name}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}

func TestProfileService_AddExperience_NewestFirst(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()
	createProfile(t, svc, user.ID)

	_, err := svc.AddExperience(ctx, user.ID, AddExperienceInput{Title: "Eng", Company: "Acme", From: "2018-01-01"})
	require.NoError(t, err)
	p, err := svc.AddExperience(ctx, user.ID, AddExperienceInput{
		Title: "Lead", Company: "Acme", From: "2020-06-01", To: "2022-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Lead", "Eng"}, experienceTitles(p))
	assert.NotEmpty(t, p.Experience[0].ID)
	assert.NotEqual(t, p.Experience[0].ID, p.Experience[1].ID)
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), p.Experience[0].From.UTC())
	require.NotNil(t, p.Experience[0].To)
	assert.Nil(t, p.Experience[1].To)

	stored, err := svc.GetOwnProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead", "Eng"}, experienceTitles(stored))
}

func TestProfileService_AddExperience_Validation(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	createProfile(t, svc, user.ID)

	_, err := svc.AddExperience(context.Background(), user.ID, AddExperienceInput{To: "soon"})
	appErr := assertCode(t, err, models.CodeValidation)
	assert.Equal(t, []string{"title", "company", "from", "to"}, fieldNames(appErr))
	assert.Equal(t, "Title is required", appErr.Fields[0].Message)
}

func TestProfileService_AddExperience_NoProfile(t *testing.T) {
	svc, _, user := newTestProfileService(t)

	_, err := svc.AddExperience(context.Background(), user.ID, AddExperienceInput{Title: "Eng", Company: "Acme", From: "2018-01-01"})
	appErr := assertCode(t, err, models.CodeNotFound)
	assert.Equal(t, "There is no profile for this user", appErr.Message)
}

func TestProfileService_RemoveExperience_PreservesOrder(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()
	createProfile(t, svc, user.ID)

	var p *models.Profile
	var err error
	for _, title := range []string{"A", "B", "C"} {
		p, err = svc.AddExperience(ctx, user.ID, AddExperienceInput{Title: title, Company: "Acme", From: "2018-01-01"})
		require.NoError(t, err)
	}
	require.Equal(t, []string{"C", "B", "A"}, experienceTitles(p))

	p, err = svc.RemoveExperience(ctx, user.ID, p.Experience[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, experienceTitles(p))

	p, err = svc.RemoveExperience(ctx, user.ID, p.Experience[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, experienceTitles(p))
}

func TestProfileService_RemoveExperience_UnknownIDIsNoop(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()
	createProfile(t, svc, user.ID)
	before, err := svc.AddExperience(ctx, user.ID, AddExperienceInput{Title: "Eng", Company: "Acme", From: "2018-01-01"})
	require.NoError(t, err)

	after, err := svc.RemoveExperience(ctx, user.ID, "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, []string{"Eng"}, experienceTitles(after))
	assert.Equal(t, before.Version, after.Version)
}

func TestProfileService_RemoveExperience_UnknownIDIssuesNoWrite(t *testing.T) {
	repo := noopProfileRepo()
	saves := 0
	repo.saveSequencesFn = func(_ context.Context, _ *models.Profile) error {
		saves++
		return nil
	}
	svc := NewProfileService(repo, time.Second)

	_, err := svc.RemoveEducation(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.Zero(t, saves)
}

func TestProfileService_Education_AddAndRemove(t *testing.T) {
	svc, _, user := newTestProfileService(t)
	ctx := context.Background()
	createProfile(t, svc, user.ID)

	_, err := svc.AddEducation(ctx, user.ID, AddEducationInput{School: "MIT", Degree: "BSc", FieldOfStudy: "CS", From: "2010-09-01"})
	require.NoError(t, err)
	p, err := svc.AddEducation(ctx, user.ID, AddEducationInput{School: "ETH", Degree: "MSc", FieldOfStudy: "CS", From: "2014-09-01"})
	require.NoError(t, err)
	require.Len(t, p.Education, 2)
	assert.Equal(t, "ETH", p.Education[0].School)
	assert.Equal(t, "MIT", p.Education[1].School)

	p, err = svc.RemoveEducation(ctx, user.ID, p.Education[0].ID)
	require.NoError(t, err)
	require.Len(t, p.Education, 1)
	assert.Equal(t, "MIT", p.Education[0].School)
}

func TestProfileService_AddEducation_Validation(t *testing.T) {
	svc, _, user := newTestProfileService(t)

	_, err := svc.AddEducation(context.Background(), user.ID, AddEducationInput{School: "MIT"})
	appErr := assertCode(t, err, models.CodeValidation)
	assert.Equal(t, []string{"degree", "fieldofstudy", "from"}, fieldNames(appErr))
	assert.Equal(t, "Field of study is required", appErr.Fields[1].Message)
}

func TestProfileService_SequenceWrite_RetriesLostRace(t *testing.T) {
	repo := noopProfileRepo()
	reads, saves := 0, 0
	repo.getByUserIDFn = func(_ context.Context, userID string) (*models.Profile, error) {
		reads++
		return &models.Profile{ID: "p1", UserID: userID, Version: int64(reads)}, nil
	}
	repo.saveSequencesFn = func(_ context.Context, _ *models.Profile) error {
		saves++
		if saves < 3 {
			return repository.ErrVersionConflict
		}
		return nil
	}
	svc := NewProfileService(repo, time.Second)
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	p, err := svc.AddExperience(context.Background(), "u1", AddExperienceInput{Title: "Eng", Company: "Acme", From: "2018-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 3, reads)
	assert.Equal(t, 3, saves)
	// Each retry starts from a fresh read, so the entry is added exactly once.
	assert.Equal(t, []string{"Eng"}, experienceTitles(p))
}

func TestProfileService_SequenceWrite_ConflictAfterBudget(t *testing.T) {
	repo := noopProfileRepo()
	saves := 0
	repo.saveSequencesFn = func(_ context.Context, _ *models.Profile) error {
		saves++
		return repository.ErrVersionConflict
	}
	svc := NewProfileService(repo, time.Second)
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	_, err := svc.AddEducation(context.Background(), "u1", AddEducationInput{School: "MIT", Degree: "BSc", FieldOfStudy: "CS", From: "2010-09-01"})
	assertCode(t, err, models.CodeConflict)
	assert.Equal(t, sequenceWriteTries, saves)
}

func TestProfileService_StoreFailure(t *testing.T) {
	repo := noopProfileRepo()
	repo.getByUserIDFn = func(_ context.Context, _ string) (*models.Profile, error) {
		return nil, models.NewStoreUnavailableError(errors.New("connection refused"))
	}
	repo.listFn = func(_ context.Context) ([]*models.Profile, error) {
		return nil, context.DeadlineExceeded
	}
	svc := NewProfileService(repo, time.Second)

	_, err := svc.RemoveExperience(context.Background(), "u1", "e1")
	assertCode(t, err, models.CodeStoreUnavailable)

	_, err = svc.ListProfiles(context.Background())
	assertCode(t, err, models.CodeStoreUnavailable)
}

func TestProfileService_StoreTimeoutApplied(t *testing.T) {
	repo := noopProfileRepo()
	var deadline time.Time
	repo.getByUserIDFn = func(ctx context.Context, _ string) (*models.Profile, error) {
		deadline, _ = ctx.Deadline()
		return &models.Profile{}, nil
	}
	svc := NewProfileService(repo, 2*time.Second)

	start := time.Now()
	_, err := svc.GetOwnProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.WithinDuration(t, start.Add(2*time.Second), deadline, 500*time.Millisecond)
}
