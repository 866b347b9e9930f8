package albumauth

import (
	"errors"

	"github.com/MrEthical07/albumauth/jwt"
)

var (
	// ErrInvalidRefreshToken covers malformed, unknown, and expired refresh ids.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrFamilyCompromised is returned when the presented credential's family no
	// longer accepts rotation, whether compromised, revoked, or inconsistent.
	ErrFamilyCompromised = errors.New("refresh family compromised")
	// ErrRefreshTokenReused is returned when an already-rotated credential is
	// presented. The family has been revoked by the time it is returned.
	ErrRefreshTokenReused = errors.New("refresh token reused")
	// ErrStoreUnavailable wraps every key-value store failure.
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	ErrInvalidMember      = errors.New("invalid member id")
	// ErrTokenInvalid and ErrTokenExpired are the access-token verification errors.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenMint is returned when signing an access token fails.
	ErrTokenMint = errors.New("access token minting failed")
	// ErrEngineNotReady is returned by methods on a nil or closed Authority.
	ErrEngineNotReady = errors.New("authority not initialized")
)
