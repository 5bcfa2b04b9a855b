package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL applies when JWTConfig leaves the lifetime unset.
const DefaultAccessTokenTTL = 15 * time.Minute

// ErrInvalidToken wraps every parse or validation failure.
var ErrInvalidToken = errors.New("jwt: invalid token")

var signingMethod = jwt.SigningMethodHS256

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims is the access token body. The session id doubles as the jti so a
// revoked session invalidates its tokens.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	Email     string `json:"email,omitempty"`
	Superuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt.Parser calls it.
func (c Claims) Validate() error {
	if c.UserID == "" {
		return errors.New("missing user id claim")
	}
	if c.Subject != "" && c.Subject != c.UserID {
		return errors.New("subject does not match user id")
	}
	return nil
}

type AccessTokenInput struct {
	UserID    string
	SessionID string
	Email     string
	Superuser bool
	Audience  []string
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	key    []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}
	s := &JWTService{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		clock:  cfg.Clock,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultAccessTokenTTL
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(opts...)
	return s, nil
}

func (s *JWTService) AccessTokenTTL() time.Duration { return s.ttl }

// GenerateAccessToken signs a token for input valid from now for the
// configured lifetime.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}
	issued := jwt.NewNumericDate(s.clock())
	claims := Claims{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Email:     input.Email,
		Superuser: input.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        input.SessionID,
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			IssuedAt:  issued,
			NotBefore: issued,
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, algorithm, issuer and lifetime.
func (s *JWTService) ValidateAccessToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	claims := new(Claims)
	if _, err := s.parser.ParseWithClaims(raw, claims, s.keyFor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (s *JWTService) keyFor(*jwt.Token) (any, error) { return s.key, nil }
