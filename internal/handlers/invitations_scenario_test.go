package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/handlers/testutil"
)

type issuedInvitation struct {
	Invitation struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Status string `json:"status"`
	} `json:"invitation"`
	Token     string `json:"token"`
	AcceptURL string `json:"accept_url"`
}

func inviteMember(t *testing.T, env *testutil.Env, orgID, email, token string) issuedInvitation {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/v1/organizations/"+orgID+"/invitations", map[string]any{"email": email}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var issued issuedInvitation
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &issued)
	require.NotEmpty(t, issued.Token)
	return issued
}

func TestInvitationAcceptRegistersNewMember(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("owner@example.com", "Secret123!")
	org := owner.Organization.ID

	issued := inviteMember(t, env, org, "new.hire@example.com", owner.Tokens.AccessToken)
	require.Equal(t, "PENDING", issued.Invitation.Status)
	require.Contains(t, issued.AcceptURL, issued.Token)

	resp := env.Request(http.MethodGet, "/api/v1/invitations/"+issued.Token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/v1/invitations/"+issued.Token+"/accept", map[string]any{
		"first_name": "New",
		"last_name":  "Hire",
		"password":   "Secret123!",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	// Tokens are single use.
	resp = env.Request(http.MethodPost, "/api/v1/invitations/"+issued.Token+"/accept", nil, "")
	require.GreaterOrEqual(t, resp.Code, http.StatusBadRequest, resp.Body.String())

	member := env.Login("new.hire@example.com", "Secret123!")

	resp = env.Request(http.MethodGet, "/api/v1/organizations/"+org+"/members", nil, owner.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.EqualValues(t, 1, testutil.DecodeResponse(t, resp).Meta.Total)

	env.Create("/api/v1/contacts", map[string]any{
		"organization": org,
		"first_name":   "Carol",
	}, member.Tokens.AccessToken)

	resp = env.Request(http.MethodGet, "/api/v1/contacts", nil, owner.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.EqualValues(t, 1, testutil.DecodeResponse(t, resp).Meta.Total)
}

func TestInvitationManagementRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("owner@example.com", "Secret123!")
	outsider := env.Register("outsider@example.com", "Secret123!")
	org := owner.Organization.ID

	resp := env.Request(http.MethodPost, "/api/v1/organizations/"+org+"/invitations",
		map[string]any{"email": "someone@example.com"}, outsider.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	issued := inviteMember(t, env, org, "someone@example.com", owner.Tokens.AccessToken)

	resp = env.Request(http.MethodPost, "/api/v1/organizations/"+org+"/invitations/"+issued.Invitation.ID+"/cancel", nil, owner.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/v1/invitations/"+issued.Token+"/accept", map[string]any{
		"first_name": "Some",
		"last_name":  "One",
		"password":   "Secret123!",
	}, "")
	require.GreaterOrEqual(t, resp.Code, http.StatusBadRequest, resp.Body.String())
}
