// Package auth issues and checks session capability tokens.
//
// Creating a session returns a short-lived HS256 JWT whose subject is the
// session ID. Every session route requires that token as a Bearer credential;
// holding it is the only permission a client needs for that session.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long a session token is valid unless configured otherwise.
const DefaultTokenTTL = 12 * time.Hour

// Predefined token errors.
var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrTokenExpired    = errors.New("session token has expired")
	ErrSessionMismatch = errors.New("session token does not grant this session")
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims

	// SessionID duplicates the subject for clients that read claims.
	SessionID string `json:"sid"`
}

// TokenConfig configures the TokenService.
type TokenConfig struct {
	// SigningKey is the HMAC secret.
	SigningKey string

	// Issuer is the issuer claim (e.g. "carpool").
	Issuer string

	// Audience is the audience claim (e.g. "carpool-sessions").
	Audience string

	// TTL is the token lifetime. Default: 12 hours
	TTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// TokenService creates and validates session tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}
}

// Issue creates a token for sessionID.
func (s *TokenService) Issue(sessionID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sessionID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authorize validates tokenString and checks that it grants sessionID.
func (s *TokenService) Authorize(tokenString, sessionID string) (*SessionClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != sessionID {
		return nil, ErrSessionMismatch
	}
	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
