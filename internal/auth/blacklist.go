package auth

import (
	"context"
	"time"
)

// TokenBlacklist checks whether a token's JTI has been revoked. The identity
// service adds entries on logout or account termination; verification here
// only ever reads.
type TokenBlacklist interface {
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
