package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/handlers/testutil"
)

type contactPayload struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization"`
}

func TestContactsAreIsolatedBetweenOrganizations(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("alice@example.com", "Secret123!")
	bob := env.Register("bob@example.com", "Secret123!")
	acme := alice.Organization.ID

	id := env.Create("/api/v1/contacts", map[string]any{
		"organization": acme,
		"first_name":   "Carol",
		"email":        "carol@acme.test",
	}, alice.Tokens.AccessToken)

	resp := env.Request(http.MethodGet, "/api/v1/contacts", nil, alice.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	page := testutil.DecodeResponse(t, resp)
	require.NotNil(t, page.Meta)
	require.EqualValues(t, 1, page.Meta.Total)
	var items []contactPayload
	testutil.DecodeInto(t, page.Data, &items)
	require.Equal(t, acme, items[0].OrganizationID)

	resp = env.Request(http.MethodGet, "/api/v1/contacts", nil, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Zero(t, testutil.DecodeResponse(t, resp).Meta.Total)

	resp = env.Request(http.MethodGet, "/api/v1/contacts?organization="+acme, nil, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Zero(t, testutil.DecodeResponse(t, resp).Meta.Total)

	resp = env.Request(http.MethodGet, "/api/v1/contacts/"+id, nil, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodDelete, "/api/v1/contacts/"+id, nil, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/v1/contacts", map[string]any{
		"organization": acme,
		"first_name":   "Mallory",
	}, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/v1/organizations/"+acme, nil, bob.Tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}

func TestCreateWithoutOrganizationIsRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("alice@example.com", "Secret123!")

	resp := env.Request(http.MethodPost, "/api/v1/contacts", map[string]any{"first_name": "Carol"}, alice.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	body := testutil.DecodeResponse(t, resp)
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	require.Contains(t, body.Error.Details, "organization")
}

func TestContactDuplicatesAndMergeOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("alice@example.com", "Secret123!")
	org := alice.Organization.ID
	token := alice.Tokens.AccessToken

	primary := env.Create("/api/v1/contacts", map[string]any{
		"organization": org, "first_name": "Carol", "email": "carol@acme.test",
	}, token)
	secondary := env.Create("/api/v1/contacts", map[string]any{
		"organization": org, "first_name": "Caroline", "email": "CAROL@acme.test",
	}, token)

	resp := env.Request(http.MethodGet, "/api/v1/contacts/duplicates?organization="+org, nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var groups []struct {
		Email string `json:"email"`
		Count int    `json:"count"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &groups)
	require.Len(t, groups, 1)
	require.Equal(t, 2, groups[0].Count)

	resp = env.Request(http.MethodPost, "/api/v1/contacts/merge", map[string]any{
		"organization": org, "primary_id": primary, "secondary_id": secondary,
	}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/v1/contacts/"+secondary, nil, token)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}
