// Package auth issues and verifies the HS256 bearer tokens reviewers use
// against the studio API.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/config"
)

// Audience is stamped on every token and required on verification.
const Audience = "studio-api"

const clockSkew = 30 * time.Second

var method = jwt.SigningMethodHS256

// Claims is the token body. The member id travels as the subject.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// MemberID parses the subject. Verify guarantees it is a non-nil UUID.
func (c *Claims) MemberID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// Token is a signed bearer token and the instant it stops being accepted.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return errors.New("jwt secret not configured")
	case cfg.Issuer == "":
		return errors.New("jwt issuer not configured")
	case cfg.ExpirationMinutes <= 0:
		return errors.New("jwt expiration must be positive")
	}
	return nil
}

// Issue signs a token for member carrying roles. Blank and repeated roles
// are dropped.
func Issue(cfg config.JWTConfig, now time.Time, member uuid.UUID, roles []string) (Token, error) {
	if err := checkConfig(cfg); err != nil {
		return Token{}, err
	}
	if member == uuid.Nil {
		return Token{}, errors.New("member id required")
	}

	clean := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role != "" && !slices.Contains(clean, role) {
			clean = append(clean, role)
		}
	}

	now = now.UTC().Truncate(time.Second)
	expires := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	claims := Claims{
		Roles: clean,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   member.String(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expires}, nil
}

// Verify checks signature, algorithm, issuer, audience and lifetime, and
// requires the subject to be a member id.
func Verify(cfg config.JWTConfig, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if id, err := uuid.Parse(claims.Subject); err != nil || id == uuid.Nil {
		return nil, errors.New("token subject is not a member id")
	}
	return claims, nil
}
