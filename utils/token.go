package utils

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// TokenMetadata is the subset of JWT claims the service relies on.
// Tokens are issued by the auth service; this service only verifies.
type TokenMetadata struct {
	UserID uint
	Exp    int64
}

// CheckAndExtractTokenMetadata verifies a raw token string against the
// access key. Used on the socket handshake, where the fiber JWT
// middleware cannot run.
func CheckAndExtractTokenMetadata(token string, key []byte) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	id, err := claimUserID(claims["id"])
	if err != nil {
		return nil, err
	}
	exp, _ := claims["exp"].(float64)
	return &TokenMetadata{UserID: id, Exp: int64(exp)}, nil
}

// claimUserID tolerates both string and numeric id claims; the auth
// service has issued both over time.
func claimUserID(raw any) (uint, error) {
	switch v := raw.(type) {
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing id claim: %w", err)
		}
		return uint(id), nil
	case float64:
		return uint(v), nil
	default:
		return 0, fmt.Errorf("missing id claim")
	}
}
