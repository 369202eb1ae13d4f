package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "smart-analyst"
	defaultTTL    = 12 * time.Hour
	defaultLeeway = 30 * time.Second
)

// TokenStore issues and validates HS256 session tokens. The jti claim carries
// the server-side session ID; the subject carries the email.
type TokenStore struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
}

func NewTokenStore(secret string, ttl time.Duration) (*TokenStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenStore{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		leeway: defaultLeeway,
	}, nil
}

// TTL reports the configured token lifetime.
func (t *TokenStore) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token binding sessionID to email.
func (t *TokenStore) Issue(sessionID, email string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   email,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify validates a token and returns (sessionID, email).
func (t *TokenStore) Verify(token string) (string, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "", errors.New("token required")
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unsupported signing method")
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(t.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return "", "", err
	}
	if claims.ID == "" || strings.TrimSpace(claims.Subject) == "" {
		return "", "", errors.New("incomplete token claims")
	}
	return claims.ID, claims.Subject, nil
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
