package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/pkg/response"
)

// AuthHandler serves registration, login and the signed-in account.
type AuthHandler struct {
	accounts *services.AccountService
}

func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var body services.RegisterInput
	if !bindJSON(c, &body) {
		return
	}
	result, err := h.accounts.Register(requestContext(c), body, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// POST /api/v1/auth/login
// Accounts with MFA enabled answer MFA_REQUIRED until mfa_code is supplied.
func (h *AuthHandler) Login(c *gin.Context) {
	var body services.LoginInput
	if !bindJSON(c, &body) {
		return
	}
	result, err := h.accounts.Login(requestContext(c), body, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	if !bindAndValidate(c, &body) {
		return
	}
	tokens, err := h.accounts.Refresh(requestContext(c), body.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tokens)
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var sessionID string
	if claims, ok := middleware.Claims(c); ok {
		sessionID = claims.SessionID
	}
	if err := h.accounts.Logout(requestContext(c), userID, sessionID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Logged out.")
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := h.accounts.Me(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// PATCH /api/v1/auth/me
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.UpdateProfileInput
	if !bindJSON(c, &body) {
		return
	}
	user, err := h.accounts.UpdateProfile(requestContext(c), userID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/v1/auth/password/change
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.ChangePasswordInput
	if !bindJSON(c, &body) {
		return
	}
	if err := h.accounts.ChangePassword(requestContext(c), userID, body); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Password changed.")
}

// POST /api/v1/auth/password/forgot
// Always answers 200 so the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body emailRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.accounts.ForgotPassword(requestContext(c), body.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "If the account exists a reset link has been sent.")
}

// POST /api/v1/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body services.ResetPasswordInput
	if !bindJSON(c, &body) {
		return
	}
	if err := h.accounts.ResetPassword(requestContext(c), body); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Password has been reset.")
}

// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body tokenRequest
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.accounts.VerifyEmail(requestContext(c), body.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/v1/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.accounts.ResendVerification(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Verification email sent.")
}

// POST /api/v1/auth/mfa/setup
func (h *AuthHandler) SetupMFA(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	enrollment, err := h.accounts.SetupMFA(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, enrollment)
}

// POST /api/v1/auth/mfa/verify
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body mfaCodeRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.accounts.VerifyMFA(requestContext(c), userID, body.Code); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"mfa_enabled": true})
}

// POST /api/v1/auth/mfa/disable
func (h *AuthHandler) DisableMFA(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.DisableMFAInput
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.accounts.DisableMFA(requestContext(c), userID, body); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"mfa_enabled": false})
}
