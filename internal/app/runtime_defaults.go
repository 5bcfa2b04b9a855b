package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/crmhub/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	encryptionKeyBytes = 32
	defaultMFAIssuer   = "CRM SaaS"
)

// generatedSecret fills one empty secret field.
type generatedSecret struct {
	key      string
	field    func(*Config) *string
	generate func() (string, error)
}

var runtimeSecrets = []generatedSecret{
	{
		key:      "auth.jwt.secret",
		field:    func(c *Config) *string { return &c.Auth.JWT.Secret },
		generate: func() (string, error) { return crypto.GenerateToken(jwtSecretBytes) },
	},
	{
		key:      "security.encryption_key",
		field:    func(c *Config) *string { return &c.Security.EncryptionKey },
		generate: func() (string, error) { return generateHexKey(encryptionKeyBytes) },
	},
}

// ApplyRuntimeDefaults fills secrets left empty by the config file and the
// environment with random values. The returned set names the generated keys;
// values never leave cfg. Generated secrets do not survive a restart, so
// sessions and encrypted MFA secrets are lost when the process exits.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := map[string]bool{}
	for _, s := range runtimeSecrets {
		target := s.field(cfg)
		if strings.TrimSpace(*target) != "" {
			continue
		}
		value, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", s.key, err)
		}
		*target = value
		generated[s.key] = true
	}

	if strings.TrimSpace(cfg.Auth.MFA.Issuer) == "" {
		cfg.Auth.MFA.Issuer = defaultMFAIssuer
	}
	return generated, nil
}

func generateHexKey(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("key length %d must be positive", n)
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
