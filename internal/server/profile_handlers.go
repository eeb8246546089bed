package server

import (
	"devconnector/internal/middleware"
	"devconnector/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/profile/me
// @Summary Current user's profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Profile
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	profile, err := s.profiles.GetOwnProfile(requestContext(c), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// ListProfiles handles GET /api/profile
// @Summary List all profiles
// @Tags profile
// @Produce json
// @Success 200 {array} models.Profile
// @Router /profile [get]
func (s *Server) ListProfiles(c *fiber.Ctx) error {
	profiles, err := s.profiles.ListProfiles(requestContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profiles)
}

// GetProfileByUserID handles GET /api/profile/user/:user_id
// @Summary Profile of a user
// @Tags profile
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} models.Profile
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/user/{user_id} [get]
func (s *Server) GetProfileByUserID(c *fiber.Ctx) error {
	profile, err := s.profiles.GetProfileByUserID(requestContext(c), c.Params("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// UpsertProfile handles POST /api/profile
// @Summary Create or update the current user's profile
// @Description Fields left empty are not changed on an existing profile.
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.UpsertProfileInput true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Router /profile [post]
func (s *Server) UpsertProfile(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	var in service.UpsertProfileInput
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}

	profile, err := s.profiles.UpsertProfile(requestContext(c), userID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// DeleteAccount handles DELETE /api/profile
// @Summary Delete the current user's profile and account
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /profile [delete]
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	if err := s.accounts.DeleteAccount(requestContext(c), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(message{Message: "User deleted"})
}

// AddExperience handles PUT /api/profile/experience
// @Summary Add an experience entry
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.AddExperienceInput true "Experience"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profile/experience [put]
func (s *Server) AddExperience(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	var in service.AddExperienceInput
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}

	profile, err := s.profiles.AddExperience(requestContext(c), userID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// RemoveExperience handles DELETE /api/profile/experience/:exp_id
func (s *Server) RemoveExperience(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	profile, err := s.profiles.RemoveExperience(requestContext(c), userID, c.Params("exp_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// AddEducation handles PUT /api/profile/education
// @Summary Add an education entry
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.AddEducationInput true "Education"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/education [put]
func (s *Server) AddEducation(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	var in service.AddEducationInput
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}

	profile, err := s.profiles.AddEducation(requestContext(c), userID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// RemoveEducation handles DELETE /api/profile/education/:edu_id
func (s *Server) RemoveEducation(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	profile, err := s.profiles.RemoveEducation(requestContext(c), userID, c.Params("edu_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// GetGithubRepos handles GET /api/profile/github/:username
// @Summary Latest public GitHub repositories of a user
// @Tags profile
// @Produce json
// @Param username path string true "GitHub username"
// @Success 200 {array} object
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /profile/github/{username} [get]
func (s *Server) GetGithubRepos(c *fiber.Ctx) error {
	body, err := s.repos.Repos(requestContext(c), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
