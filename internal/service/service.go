// Package service holds the profile, post, account and repository-lookup
// use cases. Services validate input, enforce aggregate invariants and
// translate store failures into AppErrors.
package service

import (
	"context"
	"time"

	"devconnector/internal/models"
)

// DefaultStoreTimeout bounds a service call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

type deadline struct {
	timeout time.Duration
}

func (d deadline) with(ctx context.Context) (context.Context, context.CancelFunc) {
	t := d.timeout
	if t <= 0 {
		t = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, t)
}

// storeError turns anything that escaped the repositories unclassified,
// such as an expired deadline, into STORE_UNAVAILABLE. AppErrors pass through.
func storeError(err error) error {
	if err == nil || models.ErrorCode(err) != "" {
		return err
	}
	return models.NewStoreUnavailableError(err)
}

// isNotFound reports whether err is a NOT_FOUND AppError.
func isNotFound(err error) bool {
	return models.ErrorCode(err) == models.CodeNotFound
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
