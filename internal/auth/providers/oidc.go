package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultOIDCTimeout = 10 * time.Second

// OIDCConfig is one OpenID Connect client registration.
type OIDCConfig struct {
	Name         string
	DisplayName  string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Order        int
}

type OIDCOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration

	// SkipIssuerCheck tolerates a discovery document whose issuer is a
	// template, as on Microsoft's multi-tenant endpoint.
	SkipIssuerCheck bool
}

// discovered is what the issuer's well-known document yields.
type discovered struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

type oidcProvider struct {
	cfg  OIDCConfig
	opts OIDCOptions
	meta Metadata

	mu  sync.Mutex
	idp *discovered
}

// NewOIDCProvider checks cfg without touching the network. Discovery
// happens on first use and is retried until it succeeds once.
func NewOIDCProvider(cfg OIDCConfig, opts OIDCOptions) (Provider, error) {
	cfg.Name = normaliseName(cfg.Name)
	for _, field := range []struct{ value, label string }{
		{cfg.Name, "name"},
		{cfg.Issuer, "issuer"},
		{cfg.ClientID, "client id"},
		{cfg.ClientSecret, "client secret"},
		{cfg.RedirectURL, "redirect url"},
	} {
		if strings.TrimSpace(field.value) == "" {
			return nil, fmt.Errorf("oidc provider: %s is required", field.label)
		}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultOIDCTimeout
	}

	label := strings.TrimSpace(cfg.DisplayName)
	if label == "" {
		label = strings.ToUpper(cfg.Name[:1]) + cfg.Name[1:]
	}
	return &oidcProvider{
		cfg:  cfg,
		opts: opts,
		meta: Metadata{Name: cfg.Name, DisplayName: label, Icon: cfg.Name, Order: cfg.Order, Flow: "redirect"},
	}, nil
}

func (p *oidcProvider) Metadata() Metadata { return p.meta }

// withClient routes go-oidc and oauth2 traffic through the configured client
// and bounds it by the provider timeout.
func (p *oidcProvider) withClient(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, p.opts.HTTPClient)
	}
	return context.WithTimeout(ctx, p.opts.Timeout)
}

func (p *oidcProvider) discover(ctx context.Context) (*discovered, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idp != nil {
		return p.idp, nil
	}

	ctx, cancel := p.withClient(ctx)
	defer cancel()
	if p.opts.SkipIssuerCheck {
		ctx = oidc.InsecureIssuerURLContext(ctx, p.cfg.Issuer)
	}
	issuer, err := oidc.NewProvider(ctx, p.cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: discovery failed: %w", err)
	}

	p.idp = &discovered{
		oauth: &oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  p.cfg.RedirectURL,
			Scopes:       p.cfg.Scopes,
		},
		verifier: issuer.Verifier(&oidc.Config{ClientID: p.cfg.ClientID, SkipIssuerCheck: p.opts.SkipIssuerCheck}),
	}
	return p.idp, nil
}

func (p *oidcProvider) Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	switch {
	case strings.TrimSpace(req.State) == "":
		return nil, errors.New("oidc provider: state is required")
	case strings.TrimSpace(req.Nonce) == "":
		return nil, errors.New("oidc provider: nonce is required")
	case strings.TrimSpace(req.PKCEChallenge) == "":
		return nil, errors.New("oidc provider: pkce challenge is required")
	}

	idp, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	params := []oauth2.AuthCodeOption{
		oidc.Nonce(req.Nonce),
		oauth2.SetAuthURLParam("code_challenge", req.PKCEChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if req.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	return &BeginAuthResponse{RedirectURL: idp.oauth.AuthCodeURL(req.State, params...), State: req.State}, nil
}

func (p *oidcProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	switch {
	case req.Error != "":
		return nil, fmt.Errorf("oidc provider: authorization error: %s", req.Error)
	case strings.TrimSpace(req.Code) == "":
		return nil, errors.New("oidc provider: authorization code missing")
	case strings.TrimSpace(req.PKCEVerifier) == "":
		return nil, errors.New("oidc provider: pkce verifier is required")
	}

	idp, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.withClient(ctx)
	defer cancel()

	token, err := idp.oauth.Exchange(ctx, req.Code, oauth2.VerifierOption(req.PKCEVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc provider: exchange failed: %w", err)
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, errors.New("oidc provider: id token missing")
	}
	idToken, err := idp.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: verify id token: %w", err)
	}
	if req.ExpectedNonce != "" && idToken.Nonce != req.ExpectedNonce {
		return nil, errors.New("oidc provider: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc provider: decode claims: %w", err)
	}
	return identityFromClaims(p.cfg.Name, idToken.Subject, claims), nil
}

func identityFromClaims(provider, subject string, claims map[string]any) *Identity {
	email := claim[string](claims, "email")
	if email == "" {
		// Entra ID work accounts can omit email and carry the UPN instead.
		email = claim[string](claims, "preferred_username")
	}
	verified := claim[bool](claims, "email_verified") || strings.EqualFold(claim[string](claims, "email_verified"), "true")
	return &Identity{
		Provider:      provider,
		Subject:       subject,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		EmailVerified: verified,
		FirstName:     claim[string](claims, "given_name"),
		LastName:      claim[string](claims, "family_name"),
		DisplayName:   claim[string](claims, "name"),
		AvatarURL:     claim[string](claims, "picture"),
		RawClaims:     claims,
	}
}

// claim reads key as a T, yielding the zero value when absent or of another type.
func claim[T any](claims map[string]any, key string) T {
	v, _ := claims[key].(T)
	return v
}
