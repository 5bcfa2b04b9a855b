package providers

import "context"

// Provider is an interactive external login (OAuth2 or OIDC). Begin yields
// the URL to send the browser to; Callback turns the returned code into an
// Identity.
type Provider interface {
	Metadata() Metadata
	Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error)
	Callback(ctx context.Context, req CallbackRequest) (*Identity, error)
}

// Metadata is what the login page needs to render a provider button.
type Metadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
	Flow        string `json:"flow"`
}

type BeginAuthRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
	Prompt        string
}

type BeginAuthResponse struct {
	RedirectURL string
	State       string
}

// CallbackRequest pairs the provider's query values with the secrets kept
// from Begin.
type CallbackRequest struct {
	Code          string
	Error         string
	PKCEVerifier  string
	ExpectedNonce string
}

// Identity is the normalised profile of an external account. Subject is
// unique per Provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	DisplayName   string
	AvatarURL     string
	RawClaims     map[string]any
}
