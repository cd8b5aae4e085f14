package hub

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiry is the lifetime of tokens issued by `hub token`
const DefaultTokenExpiry = 30 * 24 * time.Hour

// TokenClaims represents the claims in an API token
type TokenClaims struct {
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 API tokens
type TokenService struct {
	secretKey []byte
	issuer    string
}

// NewTokenService creates a token service; an empty secret disables authentication
func NewTokenService(secret, issuer string) *TokenService {
	if issuer == "" {
		issuer = DefaultJWTIssuer
	}
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

// Enabled reports whether API requests must carry a token
func (s *TokenService) Enabled() bool {
	return len(s.secretKey) > 0
}

// IssueToken signs a token for subject valid for expiry
func (s *TokenService) IssueToken(subject string, expiry time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("api.jwt_secret is not configured")
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}

	now := time.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken validates a token string and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrUnauthorized
}

// RequireAuth rejects requests without a valid bearer token. It passes
// everything through when authentication is disabled.
func (s *TokenService) RequireAuth(onError func(http.ResponseWriter, int, string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				onError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found {
				onError(w, http.StatusUnauthorized, "Authorization header must start with 'Bearer '", nil)
				return
			}

			if _, err := s.ValidateToken(tokenString); err != nil {
				onError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
