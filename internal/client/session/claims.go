package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity the auth service bakes into its tokens. The client
// holds no signing key, so the token is parsed unverified: claims are used
// for local identity and freshness only, real validation happens server-side
// on every request.
type Claims struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

func (c *Claims) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

type tokenClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func ParseClaims(token string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if tc.UserID == "" {
		// Some issuers put the user id in the subject instead.
		tc.UserID = tc.Subject
	}
	if tc.UserID == "" {
		return nil, fmt.Errorf("token carries no user id")
	}

	claims := &Claims{UserID: tc.UserID, Username: tc.Username}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}
