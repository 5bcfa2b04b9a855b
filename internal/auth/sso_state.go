package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/charlesng35/crmhub/pkg/crypto"
)

const (
	defaultStateTTL = 10 * time.Minute
	nonceBytes      = 24
)

var (
	// ErrStateExpired means the login took longer than the codec TTL.
	ErrStateExpired = errors.New("sso state: expired")
	// ErrStateInvalid covers state that fails to decrypt or parse.
	ErrStateInvalid = errors.New("sso state: invalid")
)

// StatePayload travels through the identity provider inside the encrypted
// state parameter and comes back on the callback.
type StatePayload struct {
	Provider  string    `json:"p"`
	ReturnURL string    `json:"r,omitempty"`
	Nonce     string    `json:"n"`
	PKCE      string    `json:"k"`
	ExpiresAt time.Time `json:"exp"`
}

// StateCodec seals StatePayload with AES-GCM, so the server keeps no
// per-login storage.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	if n := len(key); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("sso state: key must be 16, 24, or 32 bytes, got %d", n)
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// Encode stamps the expiry and seals the payload.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("sso state: provider is required")
	}
	payload.ExpiresAt = c.now().UTC().Add(c.ttl)

	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sso state: marshal payload: %w", err)
	}
	sealed, err := crypto.Encrypt(plain, c.key)
	if err != nil {
		return "", fmt.Errorf("sso state: encrypt payload: %w", err)
	}
	return sealed, nil
}

// Decode opens a state string. Any tampering reads as ErrStateInvalid.
func (c *StateCodec) Decode(state string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(state) == "" {
		return payload, ErrStateInvalid
	}
	plain, err := crypto.Decrypt(state, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}
	if json.Unmarshal(plain, &payload) != nil || payload.Provider == "" || payload.ExpiresAt.IsZero() {
		return StatePayload{}, ErrStateInvalid
	}
	if !c.now().Before(payload.ExpiresAt) {
		return payload, ErrStateExpired
	}
	return payload, nil
}

// loginSecrets are the per-login values bound into the state: the PKCE
// verifier with its S256 challenge and the OIDC nonce.
type loginSecrets struct {
	Verifier  string
	Challenge string
	Nonce     string
}

func newLoginSecrets() (loginSecrets, error) {
	nonce, err := crypto.GenerateToken(nonceBytes)
	if err != nil {
		return loginSecrets{}, fmt.Errorf("sso: generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	return loginSecrets{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Nonce:     nonce,
	}, nil
}
