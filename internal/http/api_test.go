package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillbadge/internal/client"
	"skillbadge/internal/domain"
	"skillbadge/internal/identity"
	"skillbadge/internal/ledger"
	"skillbadge/internal/metrics"
	"skillbadge/internal/query"
	"skillbadge/internal/repository/sqlite"
	"skillbadge/internal/service"
	"skillbadge/internal/storage"
)

const registerSecret = "let-me-in"

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string]int64
}

func (s *memoryStorage) PutObject(_ context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = n
	s.mu.Unlock()
	return storage.Location(bucket, key), nil
}

func (s *memoryStorage) ListObjects(context.Context, string, string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ObjectInfo
	for key, size := range s.objects {
		out = append(out, storage.ObjectInfo{Key: key, Size: size})
	}
	return out, nil
}

func (s *memoryStorage) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.example.com/" + key + "?signed", nil
}

type testLedger struct {
	server *httptest.Server
	repos  sqlite.Repositories
	store  *memoryStorage
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repos := sqlite.NewRepositories(db)
	require.NoError(t, repos.Init(context.Background()))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	store := &memoryStorage{objects: make(map[string]int64)}
	handler := NewHandler(Config{
		Ledger: service.NewLedgerService(service.LedgerConfig{
			Badges:   repos.Badges,
			Profiles: repos.Profiles,
			Roles:    repos.Roles,
			Logger:   logger,
		}),
		Accounts: service.NewAccountService(repos.Accounts, registerSecret),
		Tokens:   identity.NewTokenManager("test-secret", time.Hour),
		Storage:  store,
		Bucket:   "ledger",
		Metrics:  metrics.NewHTTPMetrics(reg),
		Gatherer: reg,
		Logger:   logger,
	})
	router := gin.New()
	handler.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testLedger{server: srv, repos: repos, store: store}
}

func (l *testLedger) call(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, l.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := l.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (l *testLedger) register(t *testing.T, username string) ledger.TokenResponse {
	t.Helper()
	resp := l.call(t, http.MethodPost, "/api/auth/register", "", ledger.CredentialsRequest{
		Username: username, Password: "password-123", Secret: registerSecret,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out ledger.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out ledger.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Error
}

func newClientFor(t *testing.T, l *testLedger, token string) (*client.Client, *ledger.HTTPBackend) {
	t.Helper()
	session := identity.NewSession()
	if token != "" {
		require.NoError(t, session.Restore(token))
	}
	backend := ledger.NewHTTPBackend(ledger.HTTPConfig{BaseURL: l.server.URL, Timeout: 5 * time.Second, Tokens: session})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return client.New(client.Config{
		Backend:  ledger.NewHandle(backend),
		Identity: session,
		Cache:    query.NewCache(query.Options{Logger: logger}),
		Logger:   logger,
	}), backend
}

func TestHealth(t *testing.T) {
	l := newTestLedger(t)
	resp := l.call(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRegisterAndLogin(t *testing.T) {
	l := newTestLedger(t)
	admin := l.register(t, "alice")
	assert.NotEmpty(t, admin.Token)

	resp := l.call(t, http.MethodPost, "/api/auth/register", "", ledger.CredentialsRequest{
		Username: "bob", Password: "password-123", Secret: "wrong",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = l.call(t, http.MethodPost, "/api/auth/register", "", ledger.CredentialsRequest{
		Username: "alice", Password: "password-123", Secret: registerSecret,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = l.call(t, http.MethodPost, "/api/auth/login", "", ledger.CredentialsRequest{
		Username: "alice", Password: "password-123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login ledger.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	assert.Equal(t, admin.Principal, login.Principal)

	resp = l.call(t, http.MethodPost, "/api/auth/login", "", ledger.CredentialsRequest{
		Username: "alice", Password: "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	l := newTestLedger(t)

	resp := l.call(t, http.MethodGet, "/api/role", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var role ledger.RoleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&role))
	assert.Equal(t, "guest", role.Role)

	resp = l.call(t, http.MethodGet, "/api/role", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = l.call(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBadgeRoutes_Errors(t *testing.T) {
	l := newTestLedger(t)
	admin := l.register(t, "alice")
	user := l.register(t, "bob")

	resp := l.call(t, http.MethodGet, "/api/badges/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "invalid badge ID format")

	resp = l.call(t, http.MethodGet, "/api/badges/42", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = l.call(t, http.MethodPost, "/api/badges", user.Token, ledger.IssueBadgeRequest{Owner: user.Principal, SkillName: "Go"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = l.call(t, http.MethodPost, "/api/badges", admin.Token, map[string]string{"owner": user.Principal})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = l.call(t, http.MethodPost, "/api/badges", admin.Token, ledger.IssueBadgeRequest{Owner: "nobody", SkillName: "Go"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = l.call(t, http.MethodGet, "/api/users/nobody/badges", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCertificateRoutes(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	admin := l.register(t, "alice")
	user := l.register(t, "bob")

	resp := l.call(t, http.MethodPost, "/api/badges", admin.Token, ledger.IssueBadgeRequest{Owner: user.Principal, SkillName: "Go"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var issued ledger.IssueBadgeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))

	resp = l.call(t, http.MethodGet, "/api/badges/1/certificate", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	id := domain.BadgeID(issued.ID)
	location, err := l.store.PutObject(ctx, "ledger", "badges/1.json", bytes.NewReader([]byte("{}")), "application/json")
	require.NoError(t, err)
	require.NoError(t, l.repos.Badges.SetCertificateLocation(ctx, id, location))

	_, backend := newClientFor(t, l, user.Token)
	url, err := backend.CertificateURL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://ledger.s3.example.com/badges/1.json?signed", url)

	resp = l.call(t, http.MethodGet, "/api/certificates", user.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = l.call(t, http.MethodGet, "/api/certificates", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var objects []StorageObjectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&objects))
	require.Len(t, objects, 1)
	assert.Equal(t, "badges/1.json", objects[0].Key)
}

func TestMetricsEndpoint(t *testing.T) {
	l := newTestLedger(t)
	l.call(t, http.MethodGet, "/api/health", "", nil)

	resp := l.call(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `path="/api/health"`)
}

func TestClientAgainstLedger(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	admin := l.register(t, "alice")
	student := l.register(t, "bob")

	adminClient, _ := newClientFor(t, l, admin.Token)
	studentClient, _ := newClientFor(t, l, student.Token)
	employer, _ := newClientFor(t, l, "")

	isAdmin, err := adminClient.IsCallerAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	before, err := studentClient.CallerBadges(ctx)
	require.NoError(t, err)
	assert.Empty(t, before)

	id, err := adminClient.IssueBadge(ctx, client.IssueBadgeParams{
		Owner:     domain.Principal(student.Principal),
		SkillName: "Rust Basics",
		Level:     "Beginner",
	})
	require.NoError(t, err)
	assert.Equal(t, query.MutationSuccess, adminClient.IssueStatus())

	badge, err := employer.VerifyBadge(ctx, id.String())
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "Rust Basics", badge.SkillName)
	assert.Equal(t, "Beginner", domain.StringValue(badge.Level))
	assert.True(t, badge.Verified)
	assert.Equal(t, domain.Principal(admin.Principal), badge.Issuer)

	missing, err := employer.VerifyBadge(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = employer.VerifyBadge(ctx, "seven")
	assert.ErrorIs(t, err, client.ErrInvalidBadgeID)

	after, err := studentClient.CallerBadges(ctx, client.WithRefresh())
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, id, after[0].ID)

	_, err = studentClient.IssueBadge(ctx, client.IssueBadgeParams{Owner: domain.Principal(student.Principal), SkillName: "Go"})
	require.Error(t, err)
	assert.True(t, ledger.IsStatus(err, http.StatusForbidden))
	assert.Equal(t, query.MutationError, studentClient.IssueStatus())

	require.NoError(t, studentClient.SaveCallerProfile(ctx, domain.UserProfile{Name: "Bob", Email: domain.OptionalString("bob@example.com")}))
	profile, err := studentClient.CallerProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Bob", profile.Name)

	viaAdmin, err := adminClient.UserProfile(ctx, domain.Principal(student.Principal))
	require.NoError(t, err)
	assert.Equal(t, profile, viaAdmin)

	require.NoError(t, adminClient.AssignCallerUserRole(ctx, domain.Principal(student.Principal), domain.RoleAdmin))
	role, err := studentClient.CallerRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)
}
