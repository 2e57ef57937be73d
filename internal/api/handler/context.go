package handler

import (
	"context"

	"github.com/mockcarpool/carpool/internal/api/middleware"
)

// GetSessionID retrieves the authorized session ID from the context.
// This is a convenience wrapper around middleware.GetSessionID.
func GetSessionID(ctx context.Context) string {
	return middleware.GetSessionID(ctx)
}
