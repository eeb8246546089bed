package server

import (
	"context"
	"encoding/json"
	"errors"

	"devconnector/internal/middleware"
	"devconnector/internal/models"
	"devconnector/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler-facing views of the services, so handlers can be tested in
// isolation.
type profileUseCases interface {
	GetOwnProfile(ctx context.Context, userID string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, userID string, in service.UpsertProfileInput) (*models.Profile, error)
	AddExperience(ctx context.Context, userID string, in service.AddExperienceInput) (*models.Profile, error)
	AddEducation(ctx context.Context, userID string, in service.AddEducationInput) (*models.Profile, error)
	RemoveExperience(ctx context.Context, userID, expID string) (*models.Profile, error)
	RemoveEducation(ctx context.Context, userID, eduID string) (*models.Profile, error)
}

type postUseCases interface {
	CreatePost(ctx context.Context, userID string, in service.CreatePostInput) (*models.Post, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	DeletePost(ctx context.Context, userID, postID string) error
	LikePost(ctx context.Context, userID, postID string) ([]models.Like, error)
	UnlikePost(ctx context.Context, userID, postID string) ([]models.Like, error)
}

type accountUseCases interface {
	DeleteAccount(ctx context.Context, userID string) error
}

type repoLookup interface {
	Repos(ctx context.Context, username string) (json.RawMessage, error)
}

// errorHandler answers errors that escaped a handler. Fiber errors keep
// their status; everything else is an opaque 500.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.FromContext(c.UserContext()).Error("unhandled error",
		zap.String("path", c.Path()), zap.Error(err))
	return models.RespondWithError(c, fiber.StatusInternalServerError, err)
}

// respondError writes err with the status its code maps to. Causes of 5xx
// answers are logged here and never sent to the client.
func respondError(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.FromContext(c.UserContext()).Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", models.ErrorCode(err)),
			zap.Error(err),
		)
	}
	return models.RespondWithError(c, status, err)
}

// requestContext returns the request context carrying the authenticated
// user, so service logs are attributed.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if userID, ok := middleware.CurrentUserID(c); ok {
		ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	}
	return ctx
}

// errNoUser answers handlers reached without an authenticated user. Routes
// that need one sit behind AuthRequired, so this is a wiring fault.
var errNoUser = models.NewUnauthenticatedError("No token, authorization denied")

// parseBody decodes the request body into dest. An empty body leaves dest
// zeroed so validation can report every missing field.
func parseBody(c *fiber.Ctx, dest interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dest); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// message is the body of answers that carry no resource.
type message struct {
	Message string `json:"message"`
}
