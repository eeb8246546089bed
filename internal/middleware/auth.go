// Package middleware provides authentication, logging, rate limiting and
// tracing middleware for the HTTP boundary.
package middleware

import (
	"strings"

	"devconnector/internal/config"
	"devconnector/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// legacyTokenHeader is accepted for clients that still send the bare token.
const legacyTokenHeader = "x-auth-token"

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// AuthRequired is a middleware that enforces authentication for protected routes.
// On success the caller's user ID is stored in c.Locals("userID") as a string.
func AuthRequired(c *fiber.Ctx) error {
	tokenString, msg := extractToken(c)
	if tokenString == "" {
		return unauthenticated(c, msg)
	}

	userID, msg := userIDFromToken(tokenString)
	if userID == "" {
		return unauthenticated(c, msg)
	}

	c.Locals("userID", userID)
	return c.Next()
}

// WebSocketAuthRequired validates a JWT passed as the token query parameter,
// falling back to the regular headers.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	tokenString := c.Query("token")
	msg := ""
	if tokenString == "" {
		tokenString, msg = extractToken(c)
		if tokenString == "" {
			return unauthenticated(c, msg)
		}
	}

	userID, msg := userIDFromToken(tokenString)
	if userID == "" {
		return unauthenticated(c, msg)
	}

	c.Locals("userID", userID)
	return c.Next()
}

func extractToken(c *fiber.Ctx) (string, string) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if legacy := strings.TrimSpace(c.Get(legacyTokenHeader)); legacy != "" {
			return legacy, ""
		}
		return "", "No token, authorization denied"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

func userIDFromToken(tokenString string) (string, string) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "Token is not valid"
	}

	// Subject claim per RFC 7519
	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", "Invalid token structure - missing subject"
	}
	return sub, ""
}

func unauthenticated(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(msg))
}

// CurrentUserID returns the authenticated user ID stored by AuthRequired.
func CurrentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("userID").(string)
	return userID, ok && userID != ""
}
