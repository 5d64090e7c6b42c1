package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillbadge/internal/domain"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPBackend_PlainNotFoundIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	backend := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL + "/wrong-prefix", Timeout: 5 * time.Second})

	badge, err := backend.VerifyBadge(context.Background(), 7)
	require.Error(t, err)
	assert.Nil(t, badge)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsNotFound(err))

	profile, err := backend.GetCallerUserProfile(context.Background())
	require.Error(t, err)
	assert.Nil(t, profile)

	profile, err = backend.GetUserProfile(context.Background(), domain.AnonymousPrincipal)
	require.Error(t, err)
	assert.Nil(t, profile)
}

func TestHTTPBackend_LedgerNotFoundIsAbsent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/badges/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "badge not found"})
	})
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "profile not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	backend := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL})

	badge, err := backend.VerifyBadge(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, badge)

	profile, err := backend.GetCallerUserProfile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestHTTPBackend_SendsTokenAndDecodes(t *testing.T) {
	owner := domain.NewSelfAuthenticatingPrincipal([]byte("owner"))
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/badges/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, BadgeToJSON(domain.SkillBadge{
			ID: 7, Owner: owner, Issuer: owner, SkillName: "Rust Basics", Verified: true, IssueTimestamp: 42,
		}))
	})
	mux.HandleFunc("POST /api/roles", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	backend := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL + "/", Tokens: staticToken("tok")})

	badge, err := backend.VerifyBadge(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "Rust Basics", badge.SkillName)
	assert.Equal(t, owner, badge.Owner)

	err = backend.AssignCallerUserRole(context.Background(), owner, domain.RoleAdmin)
	require.Error(t, err)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusForbidden, remote.StatusCode)
	assert.Equal(t, "forbidden", remote.Message)
	assert.True(t, remote.FromLedger)
}
