package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/handlers/testutil"
)

func TestMonitoringSummaryRequiresSuperuser(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.CreateSuperuser("Secret123!")
	rootLogin := env.Login(root.Email, "Secret123!")
	member := env.Register("member@example.com", "Secret123!")

	resp := env.Request(http.MethodGet, "/api/v1/monitoring/summary", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/v1/monitoring/summary", nil, member.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/v1/monitoring/summary", nil, rootLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var summary struct {
		Readiness struct {
			Status string `json:"status"`
		} `json:"readiness"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &summary)
	require.NotEmpty(t, summary.Readiness.Status)
}

func TestSecurityAuditRequiresSuperuser(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.CreateSuperuser("Secret123!")
	rootLogin := env.Login(root.Email, "Secret123!")
	member := env.Register("member@example.com", "Secret123!")

	resp := env.Request(http.MethodGet, "/api/v1/security/audit", nil, member.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/v1/security/audit", nil, rootLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}
