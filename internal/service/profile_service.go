package service

import (
	"context"
	"errors"
	"time"

	"devconnector/internal/middleware"
	"devconnector/internal/models"
	"devconnector/internal/observability"
	"devconnector/internal/repository"
	"devconnector/internal/validation"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgNoProfile       = "There is no profile for this user"
	msgProfileNotFound = "Profile not found."

	// sequenceWriteTries bounds optimistic-lock attempts on nested sequences.
	sequenceWriteTries = 5
)

type ProfileService struct {
	profiles   repository.ProfileRepository
	deadline   deadline
	newBackOff func() backoff.BackOff
}

// UpsertProfileInput is the body of a profile create-or-update. Empty
// optional fields are left untouched on an existing profile.
type UpsertProfileInput struct {
	Company        string `json:"company"`
	Website        string `json:"website"`
	Location       string `json:"location"`
	Bio            string `json:"bio"`
	Status         string `json:"status" validate:"notblank" label:"Status"`
	GithubUsername string `json:"githubusername"`
	Skills         string `json:"skills" validate:"notblank,skills" label:"Skills"`
	Youtube        string `json:"youtube"`
	Twitter        string `json:"twitter"`
	Facebook       string `json:"facebook"`
	LinkedIn       string `json:"linkedin"`
	Instagram      string `json:"instagram"`
}

// Patch converts the input into a store patch. Call after validation.
func (in UpsertProfileInput) Patch() models.ProfilePatch {
	return models.ProfilePatch{
		Company:        strPtr(in.Company),
		Website:        strPtr(in.Website),
		Location:       strPtr(in.Location),
		Bio:            strPtr(in.Bio),
		Status:         strPtr(in.Status),
		GithubUsername: strPtr(in.GithubUsername),
		Skills:         validation.SplitSkills(in.Skills),
		Youtube:        strPtr(in.Youtube),
		Twitter:        strPtr(in.Twitter),
		Facebook:       strPtr(in.Facebook),
		LinkedIn:       strPtr(in.LinkedIn),
		Instagram:      strPtr(in.Instagram),
	}
}

type AddExperienceInput struct {
	Title       string `json:"title" validate:"notblank" label:"Title"`
	Company     string `json:"company" validate:"notblank" label:"Company"`
	Location    string `json:"location"`
	From        string `json:"from" validate:"required,date" label:"From date"`
	To          string `json:"to" validate:"omitempty,date" label:"To date"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

type AddEducationInput struct {
	School       string `json:"school" validate:"notblank" label:"School"`
	Degree       string `json:"degree" validate:"notblank" label:"Degree"`
	FieldOfStudy string `json:"fieldofstudy" validate:"notblank" label:"Field of study"`
	From         string `json:"from" validate:"required,date" label:"From date"`
	To           string `json:"to" validate:"omitempty,date" label:"To date"`
	Current      bool   `json:"current"`
	Description  string `json:"description"`
}

func NewProfileService(profiles repository.ProfileRepository, storeTimeout time.Duration) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		deadline: deadline{timeout: storeTimeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
	}
}

// GetOwnProfile returns the caller's profile joined with their name and avatar.
func (s *ProfileService) GetOwnProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if isNotFound(err) {
		return nil, models.NewNotFoundMessage(msgNoProfile)
	}
	return profile, storeError(err)
}

func (s *ProfileService) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return profiles, nil
}

func (s *ProfileService) GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if isNotFound(err) {
		return nil, models.NewNotFoundMessage(msgProfileNotFound)
	}
	return profile, storeError(err)
}

// UpsertProfile creates the caller's profile or merges the present fields
// into it. Experience and education are never touched here.
func (s *ProfileService) UpsertProfile(ctx context.Context, userID string, in UpsertProfileInput) (*models.Profile, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "ProfileService", "UpsertProfile")
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	profile, err := s.profiles.Upsert(ctx, userID, in.Patch())
	err = storeError(err)
	observability.EndSpan(span, err)
	return profile, err
}

func (s *ProfileService) AddExperience(ctx context.Context, userID string, in AddExperienceInput) (*models.Profile, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	from, to := parseRange(in.From, in.To)
	exp := models.Experience{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Company:     in.Company,
		Location:    in.Location,
		From:        from,
		To:          to,
		Current:     in.Current,
		Description: in.Description,
	}
	return s.mutateSequences(ctx, userID, "AddExperience", func(p *models.Profile) bool {
		p.PrependExperience(exp)
		return true
	})
}

func (s *ProfileService) AddEducation(ctx context.Context, userID string, in AddEducationInput) (*models.Profile, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	from, to := parseRange(in.From, in.To)
	edu := models.Education{
		ID:           uuid.NewString(),
		School:       in.School,
		Degree:       in.Degree,
		FieldOfStudy: in.FieldOfStudy,
		From:         from,
		To:           to,
		Current:      in.Current,
		Description:  in.Description,
	}
	return s.mutateSequences(ctx, userID, "AddEducation", func(p *models.Profile) bool {
		p.PrependEducation(edu)
		return true
	})
}

// RemoveExperience drops the experience entry expID. An unknown id leaves
// the profile as it was and is not an error.
func (s *ProfileService) RemoveExperience(ctx context.Context, userID, expID string) (*models.Profile, error) {
	return s.mutateSequences(ctx, userID, "RemoveExperience", func(p *models.Profile) bool {
		return p.RemoveExperience(expID)
	})
}

// RemoveEducation drops the education entry eduID. See RemoveExperience.
func (s *ProfileService) RemoveEducation(ctx context.Context, userID, eduID string) (*models.Profile, error) {
	return s.mutateSequences(ctx, userID, "RemoveEducation", func(p *models.Profile) bool {
		return p.RemoveEducation(eduID)
	})
}

// mutateSequences reads the profile, applies mutate and writes the
// sequences back under the version check. A lost race re-reads and
// re-applies. mutate reports whether it changed anything; when it did not,
// no write is issued.
func (s *ProfileService) mutateSequences(
	ctx context.Context,
	userID, method string,
	mutate func(*models.Profile) bool,
) (*models.Profile, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ProfileService", method)
	ctx, cancel := s.deadline.with(ctx)
	defer cancel()

	attempt := func() (*models.Profile, error) {
		profile, err := s.profiles.GetByUserID(ctx, userID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !mutate(profile) {
			return profile, nil
		}
		err = s.profiles.SaveSequences(ctx, profile)
		if errors.Is(err, repository.ErrVersionConflict) {
			observability.ProfileVersionConflicts.Inc()
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return profile, nil
	}

	profile, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(sequenceWriteTries),
	)
	switch {
	case err == nil:
	case isNotFound(err):
		err = models.NewNotFoundMessage(msgNoProfile)
	case errors.Is(err, repository.ErrVersionConflict):
		middleware.FromContext(ctx).Warn("profile sequence write gave up after concurrent updates",
			zap.String("user_id", userID),
			zap.String("operation", method),
		)
		err = models.NewConflictError("Profile was modified concurrently, please retry", err)
	default:
		err = storeError(err)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// parseRange parses already-validated dates.
func parseRange(fromRaw, toRaw string) (time.Time, *time.Time) {
	from, _ := validation.ParseDate(fromRaw)
	if toRaw == "" {
		return from, nil
	}
	to, _ := validation.ParseDate(toRaw)
	return from, &to
}
