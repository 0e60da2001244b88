package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and verifies the stateless bearer tokens. The token is
// only half of the credential: the embedded session id still has to validate
// against the session store on every request.
type TokenManager struct {
	key []byte
	ttl time.Duration
}

type TokenClaims struct {
	AccountID int64
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func NewTokenManager(key []byte, ttl time.Duration) (*TokenManager, error) {
	if len(key) == 0 {
		return nil, errors.New("empty signing key")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{key: key, ttl: ttl}, nil
}

func (tm *TokenManager) Issue(accountID int64, sessionID string) (string, error) {
	now := time.Now().UTC()
	jti, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(accountID, 10),
		"sid": sessionID,
		"jti": jti.String(),
		"iat": now.Unix(),
		"exp": now.Add(tm.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.key)
}

// Verify parses and validates the token. Every failure mode collapses to
// ErrInvalidToken.
func (tm *TokenManager) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tm.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	accountID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || accountID <= 0 {
		return nil, ErrInvalidToken
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, ErrInvalidToken
	}
	out := &TokenClaims{AccountID: accountID, SessionID: sid}
	if jti, ok := claims["jti"].(string); ok {
		out.TokenID = jti
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}
