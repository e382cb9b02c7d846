package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/security/signer"
	"github.com/authgate/authgate/internal/store"
)

func TestProviders(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oauth/providers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"github", "google"}, body.Providers)
}

func TestStart_RedirectByDefault(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oauth/google/start", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "provider.test", loc.Host)

	claims, err := f.signer.Verify(signer.PurposeState, loc.Query().Get("state"))
	require.NoError(t, err)
	require.Equal(t, "google", signer.StringClaim(claims, "provider"))
	require.Equal(t, "redirect", signer.StringClaim(claims, "mode"))
}

func TestStart_JSONMode(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oauth/google/start?mode=json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.AuthorizationURL, body.State)
	_, err := f.signer.Verify(signer.PurposeState, body.State)
	require.NoError(t, err)
}

func TestStart_UnknownProvider(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oauth/gitlab/start", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "github, google")
}

func TestStart_InvalidMode(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oauth/google/start?mode=popup", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func loginResult() *auth.LoginResult {
	now := time.Now()
	return &auth.LoginResult{
		User: &store.User{ID: "user-001", Email: "ada@example.com", FirstName: "Ada"},
		Session: &store.Session{
			ID:        "sess-001",
			UserID:    "user-001",
			Status:    store.SessionActive,
			Provider:  "google",
			ExpiresAt: now.Add(90 * 24 * time.Hour),
			CreatedAt: now,
		},
	}
}

func callbackURL(state string) string {
	return "/v1/oauth/google/callback?code=code-abc&state=" + url.QueryEscape(state)
}

func TestCallback_JSONMode(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.service.result = loginResult()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(f.signedState("google", "json")), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TokenType    string         `json:"token_type"`
		AccessToken  string         `json:"access_token"`
		ExpiresIn    int            `json:"expires_in"`
		RefreshToken string         `json:"refresh_token"`
		User         map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Bearer", body.TokenType)
	require.Equal(t, 3600, body.ExpiresIn)
	require.Equal(t, "ada@example.com", body.User["email"])
	require.Empty(t, rec.Result().Cookies())

	claims, err := f.signer.Verify(signer.PurposeAccess, body.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-001", signer.StringClaim(claims, "sub"))
	require.Equal(t, "sess-001", signer.StringClaim(claims, "sid"))
	_, err = f.signer.Verify(signer.PurposeRefresh, body.RefreshToken)
	require.NoError(t, err)
}

func TestCallback_RedirectModeSetsCookies(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.service.result = loginResult()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(f.signedState("google", "redirect")), nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app.example/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "auth_token")
	require.Contains(t, byName, "refresh_token")
	require.True(t, byName["auth_token"].HttpOnly)
	require.True(t, byName["auth_token"].Secure)

	// Raw provider tokens must never appear in the response.
	require.NotContains(t, rec.Body.String(), "at1")
}

func TestCallback_ProviderErrorRelayedVerbatim(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/oauth/google/callback?error=access_denied&error_description=user+said+no&state="+
			url.QueryEscape(f.signedState("google", "json")), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "access_denied")
	require.Contains(t, rec.Body.String(), "user said no")
	require.Zero(t, f.service.calls)
}

func TestCallback_ProviderErrorWithoutStateRejected(t *testing.T) {
	t.Parallel()
	f := newFixture()

	// Without a state we issued, nothing from the query string is trusted,
	// not even the provider's own error report.
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/oauth/google/callback?error=access_denied&error_description=user+said+no", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "retry the sign-in")
	require.NotContains(t, rec.Body.String(), "access_denied")
	require.Zero(t, f.service.calls)
}

func TestCallback_InvalidState(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL("garbage"), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "retry the sign-in")
	require.Zero(t, f.service.calls)
}

func TestCallback_StateBoundToOtherProvider(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(f.signedState("github", "json")), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, f.service.calls)
}

func TestCallback_StateReplayRejected(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.service.result = loginResult()
	state := f.signedState("google", "json")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(state), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(state), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 1, f.service.calls)
}

func TestCallback_MissingCode(t *testing.T) {
	t.Parallel()
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/oauth/google/callback?state="+url.QueryEscape(f.signedState("google", "json")), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "authorization code")
	require.Zero(t, f.service.calls)
}

func TestCallback_ServiceErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing refresh token", auth.ErrMissingRefreshToken, http.StatusBadRequest},
		{"incomplete profile", auth.ErrIncompleteUserInfo, http.StatusBadRequest},
		{"exchange rejected", oauth.ErrTokenExchange, http.StatusBadRequest},
		{"userinfo rejected", oauth.ErrUserInfo, http.StatusBadRequest},
		{"integrity failure", secretbox.ErrIntegrity, http.StatusInternalServerError},
		{"unexpected", errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.service.err = tc.err

			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackURL(f.signedState("google", "json")), nil))

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusInternalServerError {
				// Internal causes never leak to the client.
				require.False(t, strings.Contains(rec.Body.String(), "pool exhausted"))
			}
		})
	}
}
