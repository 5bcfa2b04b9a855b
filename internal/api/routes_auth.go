package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/handlers"
)

func registerAuthRoutes(public, protected *gin.RouterGroup, auth *handlers.AuthHandler, oauth *handlers.OAuthHandler) {
	open := public.Group("/auth")
	{
		open.POST("/register", auth.Register)
		open.POST("/login", auth.Login)
		open.POST("/refresh", auth.Refresh)
		open.POST("/password/forgot", auth.ForgotPassword)
		open.POST("/password/reset", auth.ResetPassword)
		open.POST("/verify-email", auth.VerifyEmail)
		open.GET("/oauth/providers", oauth.Providers)
		open.GET("/oauth/:provider/login", oauth.Login)
		open.GET("/oauth/:provider/callback", oauth.Callback)
	}

	account := protected.Group("/auth")
	{
		account.POST("/logout", auth.Logout)
		account.GET("/me", auth.Me)
		account.PATCH("/me", auth.UpdateProfile)
		account.POST("/password/change", auth.ChangePassword)
		account.POST("/verify-email/resend", auth.ResendVerification)
		account.POST("/mfa/setup", auth.SetupMFA)
		account.POST("/mfa/verify", auth.VerifyMFA)
		account.POST("/mfa/disable", auth.DisableMFA)
	}
}
