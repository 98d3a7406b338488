package auth

import (
	"time"

	"github.com/google/uuid"
)

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the minted access token and the roles baked into it.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	MemberID    uuid.UUID `json:"member_id"`
	Roles       []string  `json:"roles"`
}
