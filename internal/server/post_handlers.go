package server

import (
	"devconnector/internal/middleware"
	"devconnector/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePostInput true "Post"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	var in service.CreatePostInput
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}

	post, err := s.posts.CreatePost(requestContext(c), userID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// ListPosts handles GET /api/posts
// @Summary List posts, newest first
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Post
// @Router /posts [get]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	posts, err := s.posts.ListPosts(requestContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.posts.GetPost(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete an own post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	if err := s.posts.DeletePost(requestContext(c), userID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(message{Message: "Post removed."})
}

// LikePost handles PUT /api/posts/like/:id and answers with the likes.
// @Summary Like a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {array} models.Like
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/like/{id} [put]
func (s *Server) LikePost(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	likes, err := s.posts.LikePost(requestContext(c), userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(likes)
}

// UnlikePost handles PUT /api/posts/unlike/:id
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return respondError(c, errNoUser)
	}

	likes, err := s.posts.UnlikePost(requestContext(c), userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(likes)
}
