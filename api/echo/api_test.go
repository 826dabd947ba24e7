package echoapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	echoapi "github.com/vibestream/vibestream-server/api/echo"
	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/auth"
	"github.com/vibestream/vibestream-server/internal/federation"
	"github.com/vibestream/vibestream-server/internal/spotify"
	"github.com/vibestream/vibestream-server/middleware"
	"github.com/vibestream/vibestream-server/services"
)

type memUsers struct {
	users  map[string]*domain.User
	nextID int
}

func (r *memUsers) Create(_ context.Context, user *domain.User) error {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return domain.ErrEmailTaken
		}
		if existing.Username == user.Username {
			return domain.ErrUsernameTaken
		}
	}
	r.nextID++
	user.ID = fmt.Sprintf("user-%d", r.nextID)
	r.users[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUsers) AddLinkedService(_ context.Context, userID string, svc domain.LinkedService) error {
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.LinkedService(svc.ServiceName) != nil {
		return domain.ErrAlreadyLinked
	}
	u.LinkedServices = append(u.LinkedServices, svc)
	return nil
}

func (r *memUsers) UpdateLinkedService(_ context.Context, userID string, svc domain.LinkedService) error {
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	existing := u.LinkedService(svc.ServiceName)
	if existing == nil {
		return domain.ErrServiceNotLinked
	}
	*existing = svc
	return nil
}

func (r *memUsers) RemoveLinkedService(_ context.Context, userID string, name domain.StreamingService) error {
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	for i := range u.LinkedServices {
		if u.LinkedServices[i].ServiceName == name {
			u.LinkedServices = append(u.LinkedServices[:i], u.LinkedServices[i+1:]...)
			return nil
		}
	}
	return domain.ErrServiceNotLinked
}

func (r *memUsers) UpsertAuthMethod(_ context.Context, userID string, method domain.AuthMethod) error {
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if existing := u.AuthMethod(method.AuthProvider); existing != nil {
		*existing = method
		return nil
	}
	u.AuthMethods = append(u.AuthMethods, method)
	return nil
}

type memSessions struct {
	sessions map[string]*domain.Session
}

func (r *memSessions) Store(_ context.Context, s *domain.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *memSessions) Revoke(_ context.Context, id string) error {
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.IsRevoked = true
	return nil
}

func (r *memSessions) Touch(_ context.Context, id string) error { return nil }

type memStates struct {
	states map[string]cache.LinkState
}

func (s *memStates) Save(_ context.Context, state string, data cache.LinkState) error {
	s.states[state] = data
	return nil
}

func (s *memStates) Consume(_ context.Context, state string) (*cache.LinkState, error) {
	data, ok := s.states[state]
	if !ok {
		return nil, cache.ErrStateNotFound
	}
	delete(s.states, state)
	return &data, nil
}

type stubRefresher struct {
	token     string
	expiresIn int
	calls     int
}

func (f *stubRefresher) Refresh(_ context.Context, _ string) (string, int, error) {
	f.calls++
	return f.token, f.expiresIn, nil
}

type testEnv struct {
	e         *echo.Echo
	users     *memUsers
	sessions  *memSessions
	states    *memStates
	refresher *stubRefresher
	upstream  *httptest.Server
}

func newTestEnv(t *testing.T, upstreamHandler http.HandlerFunc) *testEnv {
	t.Helper()

	env := &testEnv{
		users:     &memUsers{users: make(map[string]*domain.User)},
		sessions:  &memSessions{sessions: make(map[string]*domain.Session)},
		states:    &memStates{states: make(map[string]cache.LinkState)},
		refresher: &stubRefresher{token: "A2", expiresIn: 3600},
	}
	if upstreamHandler == nil {
		upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}
	}
	env.upstream = httptest.NewServer(upstreamHandler)
	t.Cleanup(env.upstream.Close)

	authSvc := services.NewAuthService(env.users, env.sessions,
		auth.NewBcryptPasswordHasher(bcrypt.MinCost), time.Hour)
	linkSvc := services.NewLinkService(env.users)

	providerCfg := federation.ProviderConfig{ClientID: "cid", ClientSecret: "secret"}
	google, err := federation.NewProvider(domain.ProviderGoogle, providerCfg)
	require.NoError(t, err)
	spotifyAuth, err := federation.NewProvider(domain.ProviderSpotify, providerCfg)
	require.NoError(t, err)

	sessionAuth := middleware.NewSessionAuth(authSvc, nil)
	gate := middleware.NewLinkedServiceGate(env.users, env.refresher, nil)

	api := echoapi.NewAPI(
		echoapi.Config{
			ClientURL:          "http://localhost:3000",
			GoogleCallbackURL:  "http://localhost:3001/api/auth/google/callback",
			SpotifyCallbackURL: "http://localhost:3001/api/auth/spotify/callback",
		},
		authSvc,
		linkSvc,
		google,
		spotifyAuth,
		&spotify.Client{BaseURL: env.upstream.URL, HTTPClient: env.upstream.Client()},
		env.states,
		sessionAuth,
		gate,
		nil,
	)

	env.e = echo.New()
	env.e.Validator = echoapi.NewValidator()
	api.RegisterRoutes(env.e)
	return env
}

func (env *testEnv) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) registerAndLogin(t *testing.T) *http.Cookie {
	t.Helper()

	rec := env.do(http.MethodPost, "/api/users",
		`{"username": "listener", "displayName": "Test Listener", "email": "listener@example.com", "password": "pw12345678"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/auth/login",
		`{"email": "listener@example.com", "password": "pw12345678"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func (env *testEnv) linkSpotify(t *testing.T, userID string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, env.users.AddLinkedService(context.Background(), userID, domain.LinkedService{
		ServiceName:    domain.ServiceSpotify,
		ProfileID:      "spotify-user-1",
		AccessToken:    "A1",
		RefreshToken:   "R1",
		ExpirationDate: expiresAt,
	}))
}

func TestRegisterLoginVerifyLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)

	rec := env.do(http.MethodGet, "/api/auth/verify", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "listener@example.com")

	rec = env.do(http.MethodPost, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth/verify", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"username": "listener", "displayName": "Test Listener", "email": "listener@example.com", "password": "pw12345678"}`
	rec := env.do(http.MethodPost, "/api/users", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body = `{"username": "listener2", "displayName": "Test Listener", "email": "listener@example.com", "password": "pw12345678"}`
	rec = env.do(http.MethodPost, "/api/users", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "email")
}

func TestGatedRoutes_RequireSession(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/spotify/search?term=x&type=track"},
		{http.MethodPut, "/api/spotify/play"},
		{http.MethodPut, "/api/spotify/set"},
		{http.MethodGet, "/api/spotify/audio?trackId=x"},
		{http.MethodGet, "/api/spotify/token"},
	} {
		rec := env.do(route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestGatedRoutes_RequireLinkedSpotify(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)

	rec := env.do(http.MethodGet, "/api/spotify/token", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "spotify service not linked")
}

func TestTokenEndpoint_RefreshesExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(-time.Minute))

	rec := env.do(http.MethodGet, "/api/spotify/token", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		AccessToken     string    `json:"accessToken"`
		TokenExpiration time.Time `json:"tokenExpiration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "A2", body.AccessToken)
	assert.WithinDuration(t, time.Now().Add(3600*time.Second), body.TokenExpiration, 2*time.Second)
	assert.Equal(t, 1, env.refresher.calls)

	stored := env.users.users["user-1"].LinkedService(domain.ServiceSpotify)
	assert.Equal(t, "A2", stored.AccessToken)
}

func TestSearch_ProxiesUpstream(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks": {"items": []}}`))
	})
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(time.Hour))

	rec := env.do(http.MethodGet, "/api/spotify/search?term=daft+punk&type=track", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"tracks": {"items": []}}`, rec.Body.String())
}

func TestSearch_RequiresTermAndType(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(time.Hour))

	rec := env.do(http.MethodGet, "/api/spotify/search?term=daft+punk", "", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Search term and type are required")
}

func TestSearch_ForwardsUpstreamStatus(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"status": 429, "message": "API rate limit exceeded"}}`))
	})
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(time.Hour))

	rec := env.do(http.MethodGet, "/api/spotify/search?term=x&type=track", "", cookie)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "API rate limit exceeded")
}

func TestPlay_ValidatesBody(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(time.Hour))

	rec := env.do(http.MethodPut, "/api/spotify/play", `{"uris": []}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleLogin_RedirectsWithStoredState(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/api/auth/google", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get(echo.HeaderLocation)
	assert.Contains(t, location, "accounts.google.com")
	assert.Contains(t, location, "access_type=offline")
	assert.Contains(t, location, "prompt=select_account")

	require.Len(t, env.states.states, 1)
	for _, data := range env.states.states {
		assert.Equal(t, domain.ProviderGoogle, data.Provider)
	}
}

func TestSpotifyLink_RedirectsWithSessionBoundState(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)

	rec := env.do(http.MethodGet, "/api/auth/spotify", "", cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "accounts.spotify.com/authorize")

	require.Len(t, env.states.states, 1)
	for _, data := range env.states.states {
		assert.Equal(t, domain.ProviderSpotify, data.Provider)
		assert.Equal(t, cookie.Value, data.SessionID)
	}
}

func TestSpotifyCallback_RejectsUnknownState(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)

	rec := env.do(http.MethodGet, "/api/auth/spotify/callback?state=forged&code=abc", "", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid")
}

func TestSpotifyCallback_RejectsForeignSessionState(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)

	// State minted for a different session must not complete this one's flow.
	require.NoError(t, env.states.Save(context.Background(), "state-1", cache.LinkState{
		Provider:  domain.ProviderSpotify,
		SessionID: "someone-elses-session",
	}))

	rec := env.do(http.MethodGet, "/api/auth/spotify/callback?state=state-1&code=abc", "", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpotifyUnlink(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.registerAndLogin(t)
	env.linkSpotify(t, "user-1", time.Now().Add(time.Hour))

	rec := env.do(http.MethodDelete, "/api/spotify/link", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/spotify/token", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodDelete, "/api/spotify/link", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK")
}
