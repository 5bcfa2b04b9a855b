// Package testutil boots the full HTTP stack on an in-memory database for
// end-to-end handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/api"
	"github.com/charlesng35/crmhub/internal/app"
	iauth "github.com/charlesng35/crmhub/internal/auth"
	dbtest "github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/pkg/crypto"
	"github.com/charlesng35/crmhub/pkg/response"
)

type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Config   *app.Config
	Services *api.Services
}

type EnvOption func(*app.Config)

func baseConfig() *app.Config {
	cfg := &app.Config{}
	cfg.Server.BaseURL = "http://localhost:8000"
	cfg.Server.RateLimit = app.RateLimitConfig{Requests: 10_000, Window: time.Minute}
	cfg.Auth.JWT = app.JWTSettings{Secret: "handler-tests-need-a-secret-of-32-bytes+", Issuer: "test-suite", TTL: time.Hour}
	cfg.Auth.Session = app.SessionSettings{RefreshTTL: 24 * time.Hour, RefreshLength: 48}
	cfg.Invitations = app.InvitationConfig{Expiry: 72 * time.Hour, AcceptURL: "http://localhost:3000/invitations/accept"}
	cfg.Security.EncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus = app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}
	return cfg
}

// NewEnv wires a router over a freshly migrated database. Rate limits are
// effectively off and mail goes nowhere.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := baseConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	db := dbtest.MustOpenTestDB(t, dbtest.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)
	svc, err := api.NewServices(api.ServiceDeps{DB: db, Config: cfg, Sessions: sessions})
	require.NoError(t, err)
	mon, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:         db,
		Config:     cfg,
		JWT:        jwtSvc,
		Sessions:   sessions,
		RateStore:  middleware.NewMemoryRateStore(),
		Monitoring: mon,
		Services:   svc,
	})
	require.NoError(t, err)

	return &Env{T: t, DB: db, Router: router, Config: cfg, Services: svc}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	EmailVerified bool   `json:"email_verified"`
	IsSuperuser   bool   `json:"is_superuser"`
}

type OrganizationPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// AuthResult is the data of a register or login response. Organization is
// only present after registration.
type AuthResult struct {
	User         UserPayload          `json:"user"`
	Tokens       TokenPair            `json:"tokens"`
	Organization *OrganizationPayload `json:"organization"`
}

func (e *Env) authenticate(path string, body map[string]string, status int) AuthResult {
	e.T.Helper()
	w := e.Request(http.MethodPost, path, body, "")
	require.Equal(e.T, status, w.Code, w.Body.String())

	var out AuthResult
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &out)
	require.NotEmpty(e.T, out.Tokens.AccessToken)
	require.NotEmpty(e.T, out.Tokens.RefreshToken)
	require.Positive(e.T, out.Tokens.ExpiresIn)
	return out
}

// Register signs up through the API, which also creates the first organization.
func (e *Env) Register(email, password string) AuthResult {
	e.T.Helper()
	out := e.authenticate("/api/v1/auth/register", map[string]string{
		"email":      email,
		"password":   password,
		"first_name": "Test",
		"last_name":  "User",
	}, http.StatusCreated)
	require.NotNil(e.T, out.Organization)
	return out
}

func (e *Env) Login(email, password string) AuthResult {
	e.T.Helper()
	return e.authenticate("/api/v1/auth/login", map[string]string{"email": email, "password": password}, http.StatusOK)
}

// CreateSuperuser inserts a platform superuser straight into the database.
func (e *Env) CreateSuperuser(password string) *models.User {
	e.T.Helper()
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	root := &models.User{
		Email:         "root-" + uuid.NewString() + "@example.com",
		FirstName:     "Root",
		LastName:      "User",
		Password:      hashed,
		EmailVerified: true,
		IsActive:      true,
		IsSuperuser:   true,
		AuthProvider:  "local",
	}
	require.NoError(e.T, e.DB.Create(root).Error)
	return root
}

// APIResponse is the envelope every handler writes.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *Meta               `json:"meta"`
}

// Meta decodes both the page number and the cursor meta blocks.
type Meta struct {
	response.Meta
	CursorNext     *string `json:"cursor_next"`
	CursorPrevious *string `json:"cursor_previous"`
}

func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var out APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	require.NotNil(t, dest)
	require.NoError(t, json.Unmarshal(raw, dest), string(raw))
}

// Request sends body as JSON, when non-nil, with token as a bearer credential.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		payload = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Create POSTs body, expects 201 and returns the new record's id.
func (e *Env) Create(path string, body any, token string) string {
	e.T.Helper()
	w := e.Request(http.MethodPost, path, body, token)
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &created)
	require.NotEmpty(e.T, created.ID)
	return created.ID
}
