package repository

import (
	"context"

	"devconnector/internal/models"
	"devconnector/internal/observability"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer observability.TrackQuery("get_by_id", "users")()

	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, mapError(err, "User", id)
	}
	return &user, nil
}

// GetSummaries returns the name and avatar of every user in ids that still
// exists. Missing users are absent from the map.
func (r *userRepository) GetSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	defer observability.TrackQuery("get_summaries", "users")()

	var rows []models.UserSummary
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "name", "avatar").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, mapError(err, "User", ids)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return mapError(err, "User", user.Email)
	}
	r.log.LogWrite(ctx, "create", zap.String("id", user.ID))
	return nil
}

// Delete removes the user. Deleting an absent user is not an error.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete", zap.String("id", id))
		return mapError(res.Error, "User", id)
	}
	r.log.LogWrite(ctx, "delete", zap.String("id", id), zap.Int64("rows", res.RowsAffected))
	return nil
}
