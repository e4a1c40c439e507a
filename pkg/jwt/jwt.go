// Package jwt verifies session tokens issued by the external identity
// provider and exposes the resulting session to handlers.
package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("jwt: missing signing key")
	ErrMissingToken      = errors.New("jwt: missing token")
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrMissingSubject    = errors.New("jwt: token has no subject")
)

// Config is read from the environment. Secret is the identity provider's
// HS256 signing secret.
type Config struct {
	Secret     string `env:"AUTH_JWT_SECRET,required"`
	Issuer     string `env:"AUTH_JWT_ISSUER"`
	Audience   string `env:"AUTH_JWT_AUDIENCE" envDefault:"authenticated"`
	CookieName string `env:"AUTH_COOKIE_NAME" envDefault:"sb-access-token"`
}

// Claims mirrors the identity provider's access token payload.
type Claims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	gojwt.RegisteredClaims
}

// Session is the authenticated caller derived from a verified token.
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Verifier validates HS256 tokens.
type Verifier struct {
	key    []byte
	parser *gojwt.Parser
}

// NewVerifier returns ErrMissingSigningKey for an empty secret.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(cfg.Audience))
	}

	return &Verifier{key: []byte(cfg.Secret), parser: gojwt.NewParser(opts...)}, nil
}

// Verify parses token and returns the session it represents. When the
// provider omits a session id, the token id stands in for it.
func (v *Verifier) Verify(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return Session{}, errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Session{}, ErrMissingSubject
	}

	s := Session{
		ID:     claims.SessionID,
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if s.ID == "" {
		s.ID = claims.ID
	}
	if s.ID == "" {
		s.ID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Sign issues a token with the given claims. The application never mints
// sessions itself; this exists for local tooling and tests.
func Sign(secret string, claims Claims) (string, error) {
	if secret == "" {
		return "", ErrMissingSigningKey
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
