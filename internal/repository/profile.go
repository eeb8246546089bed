package repository

import (
	"context"
	"time"

	"devconnector/internal/models"
	"devconnector/internal/observability"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	Upsert(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error)
	SaveSequences(ctx context.Context, profile *models.Profile) error
	DeleteByUserID(ctx context.Context, userID string) (bool, error)
}

type profileRepository struct {
	db    *gorm.DB
	users UserRepository
	log   *observability.RepoLogger
}

// NewProfileRepository returns a ProfileRepository that joins user
// summaries from users.
func NewProfileRepository(db *gorm.DB, users UserRepository) ProfileRepository {
	return &profileRepository{db: db, users: users, log: observability.NewRepoLogger("profiles")}
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "GetByUserID", "profiles")
	defer span.End()
	defer observability.TrackQuery("get_by_user_id", "profiles")()

	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, mapError(err, "Profile for user", userID)
	}
	if err := r.attachUsers(ctx, []*models.Profile{&profile}); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	defer observability.TrackQuery("list", "profiles")()

	var profiles []*models.Profile
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&profiles).Error; err != nil {
		return nil, mapError(err, "Profile", nil)
	}
	if err := r.attachUsers(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Upsert creates the user's profile from patch, or merges the patch into the
// existing one, in a single statement. Nested sequences are never written.
func (r *profileRepository) Upsert(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "Upsert", "profiles")
	defer span.End()

	row := &models.Profile{UserID: userID}
	patch.ApplyTo(row)

	cols := append(patch.Columns(), "updated_at")
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(row).Error
	if err != nil {
		r.log.LogError(ctx, err, "upsert", zap.String("user_id", userID))
		return nil, mapError(err, "Profile", userID)
	}
	r.log.LogWrite(ctx, "upsert", zap.String("user_id", userID), zap.Strings("columns", cols))

	return r.GetByUserID(ctx, userID)
}

// SaveSequences writes the experience and education sequences of profile if
// its version still matches the stored one. It returns ErrVersionConflict
// when another writer got there first.
func (r *profileRepository) SaveSequences(ctx context.Context, profile *models.Profile) error {
	ctx, span := observability.StartRepositorySpan(ctx, "SaveSequences", "profiles")
	defer span.End()
	defer observability.TrackQuery("save_sequences", "profiles")()

	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND version = ?", profile.ID, profile.Version).
		Updates(map[string]interface{}{
			"experience": profile.Experience,
			"education":  profile.Education,
			"version":    profile.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "save_sequences", zap.String("id", profile.ID))
		return mapError(res.Error, "Profile", profile.ID)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	profile.Version++
	profile.UpdatedAt = now
	r.log.LogWrite(ctx, "save_sequences", zap.String("id", profile.ID), zap.Int64("version", profile.Version))
	return nil
}

// DeleteByUserID removes the user's profile and reports whether one existed.
func (r *profileRepository) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Profile{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete", zap.String("user_id", userID))
		return false, mapError(res.Error, "Profile", userID)
	}
	r.log.LogWrite(ctx, "delete", zap.String("user_id", userID), zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected > 0, nil
}

func (r *profileRepository) attachUsers(ctx context.Context, profiles []*models.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}

	summaries, err := r.users.GetSummaries(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if s, ok := summaries[p.UserID]; ok {
			p.User = s
		} else {
			p.User = models.UserSummary{ID: p.UserID}
		}
	}
	return nil
}
