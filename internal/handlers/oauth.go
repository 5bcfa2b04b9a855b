package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/logger"
	"github.com/charlesng35/crmhub/pkg/response"
)

// OAuthHandler drives social login through the SSO manager.
type OAuthHandler struct {
	sso *iauth.SSOManager
}

func NewOAuthHandler(sso *iauth.SSOManager) *OAuthHandler {
	return &OAuthHandler{sso: sso}
}

type oauthLoginResponse struct {
	User      *models.User    `json:"user"`
	Tokens    iauth.TokenPair `json:"tokens"`
	Created   bool            `json:"created"`
	ReturnURL string          `json:"return_url,omitempty"`
}

// GET /api/v1/auth/oauth/providers
func (h *OAuthHandler) Providers(c *gin.Context) {
	list := h.sso.Providers()
	if list == nil {
		list = []providers.Metadata{}
	}
	response.Success(c, http.StatusOK, list)
}

// GET /api/v1/auth/oauth/:provider/login?return_url=/dashboard
// Redirects to the provider unless the client asks for JSON with ?mode=json.
func (h *OAuthHandler) Login(c *gin.Context) {
	redirectURL, err := h.sso.Begin(requestContext(c), c.Param("provider"), c.Query("return_url"))
	if err != nil {
		response.Error(c, oauthError(err))
		return
	}
	if c.Query("mode") == "json" {
		response.Success(c, http.StatusOK, gin.H{"redirect_url": redirectURL})
		return
	}
	c.Redirect(http.StatusFound, redirectURL)
}

// GET /api/v1/auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	result, err := h.sso.Complete(requestContext(c), c.Param("provider"), iauth.CallbackInput{
		State: c.Query("state"),
		Code:  c.Query("code"),
		Error: c.Query("error"),
	}, sessionMetadata(c))
	if err != nil {
		logger.WithModule("oauth").Warn("oauth callback rejected",
			zap.String("provider", c.Param("provider")),
			zap.Error(err),
		)
		response.Error(c, oauthError(err))
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.Success(c, status, oauthLoginResponse{
		User:      result.User,
		Tokens:    result.Tokens,
		Created:   result.Created,
		ReturnURL: result.ReturnURL,
	})
}

func oauthError(err error) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, providers.ErrProviderNotFound):
		return errors.NewNotFound("Unknown login provider.")
	case stderrors.Is(err, iauth.ErrStateExpired):
		return errors.NewBadRequest("Login attempt expired. Please start again.")
	case stderrors.Is(err, iauth.ErrStateInvalid), stderrors.Is(err, iauth.ErrSSOProviderMismatch),
		stderrors.Is(err, iauth.ErrSSOStateReused):
		return errors.NewBadRequest("Invalid login state.")
	case stderrors.Is(err, iauth.ErrSSOEmailRequired):
		return errors.NewBadRequest("The provider did not share an email address.")
	case stderrors.Is(err, iauth.ErrSSOEmailUnverified):
		return errors.NewBadRequest("The provider has not verified this email address.")
	case stderrors.Is(err, iauth.ErrSSOUserDisabled):
		return errors.ErrPermissionDenied
	default:
		return errors.ErrUnauthorized.WithInternal(err)
	}
}
