package account

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the payload of a session secret. The secret is
// opaque to clients; server-side it is an HS256 JWT naming the session
// row so sign-out can revoke it.
type sessionClaims struct {
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

func signSessionSecret(key []byte, sessionID, accountID string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		SessionID: sessionID,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "storeit",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	secret, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign session secret: %w", err)
	}
	return secret, nil
}

func parseSessionSecret(key []byte, secret string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(secret, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session secret")
	}
	return claims, nil
}
