package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skillbadge/internal/domain"
)

// RemoteError is a rejection reported by the ledger.
type RemoteError struct {
	StatusCode int
	Message    string
	// FromLedger is set when the body decoded as the ledger's JSON error payload.
	FromLedger bool
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("ledger returned status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a RemoteError with the given status code.
func IsStatus(err error, code int) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == code
}

// IsNotFound reports whether the ledger itself answered that the resource is absent.
// A 404 without the ledger's error payload (wrong base URL, proxy page) is not absence.
func IsNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound && remote.FromLedger
}

// TokenSource supplies the bearer token of the current identity, if any.
type TokenSource interface {
	Token() string
}

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
}

// HTTPBackend talks to a ledger server over its JSON API.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     cfg.Tokens,
	}
}

var _ Backend = (*HTTPBackend)(nil)

func (b *HTTPBackend) GetBadgesForUser(ctx context.Context, user domain.Principal) ([]domain.SkillBadge, error) {
	var out []BadgeJSON
	if err := b.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(user.String())+"/badges", nil, &out); err != nil {
		return nil, fmt.Errorf("get badges for user: %w", err)
	}
	return badgesFromJSON(out), nil
}

func (b *HTTPBackend) VerifyBadge(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error) {
	var out BadgeJSON
	if err := b.do(ctx, http.MethodGet, "/api/badges/"+id.String(), nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("verify badge: %w", err)
	}
	badge := out.Domain()
	return &badge, nil
}

func (b *HTTPBackend) GetAllBadges(ctx context.Context) ([]domain.SkillBadge, error) {
	var out []BadgeJSON
	if err := b.do(ctx, http.MethodGet, "/api/badges", nil, &out); err != nil {
		return nil, fmt.Errorf("get all badges: %w", err)
	}
	return badgesFromJSON(out), nil
}

func (b *HTTPBackend) IssueBadge(ctx context.Context, owner domain.Principal, skillName string, description, level *string) (domain.BadgeID, error) {
	req := IssueBadgeRequest{
		Owner:       owner.String(),
		SkillName:   skillName,
		Description: description,
		Level:       level,
	}
	var out IssueBadgeResponse
	if err := b.do(ctx, http.MethodPost, "/api/badges", req, &out); err != nil {
		return 0, fmt.Errorf("issue badge: %w", err)
	}
	return domain.BadgeID(out.ID), nil
}

func (b *HTTPBackend) GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error) {
	return b.getProfile(ctx, "/api/profile")
}

func (b *HTTPBackend) GetUserProfile(ctx context.Context, user domain.Principal) (*domain.UserProfile, error) {
	return b.getProfile(ctx, "/api/users/"+url.PathEscape(user.String())+"/profile")
}

func (b *HTTPBackend) getProfile(ctx context.Context, path string) (*domain.UserProfile, error) {
	var out ProfileJSON
	if err := b.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	profile := out.Domain()
	return &profile, nil
}

func (b *HTTPBackend) SaveCallerUserProfile(ctx context.Context, profile domain.UserProfile) error {
	if err := b.do(ctx, http.MethodPut, "/api/profile", ProfileToJSON(profile), nil); err != nil {
		return fmt.Errorf("save user profile: %w", err)
	}
	return nil
}

func (b *HTTPBackend) GetCallerUserRole(ctx context.Context) (domain.UserRole, error) {
	var out RoleResponse
	if err := b.do(ctx, http.MethodGet, "/api/role", nil, &out); err != nil {
		return "", fmt.Errorf("get caller role: %w", err)
	}
	return domain.ParseUserRole(out.Role)
}

func (b *HTTPBackend) IsCallerAdmin(ctx context.Context) (bool, error) {
	var out AdminResponse
	if err := b.do(ctx, http.MethodGet, "/api/role/admin", nil, &out); err != nil {
		return false, fmt.Errorf("check caller admin: %w", err)
	}
	return out.Admin, nil
}

func (b *HTTPBackend) AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error {
	req := AssignRoleRequest{User: user.String(), Role: role.String()}
	if err := b.do(ctx, http.MethodPost, "/api/roles", req, nil); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// Register creates an account on the reference ledger.
func (b *HTTPBackend) Register(ctx context.Context, username, password, secret string) (TokenResponse, error) {
	var out TokenResponse
	req := CredentialsRequest{Username: username, Password: password, Secret: secret}
	if err := b.do(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return TokenResponse{}, fmt.Errorf("register: %w", err)
	}
	return out, nil
}

// Login exchanges credentials for a bearer token.
func (b *HTTPBackend) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	var out TokenResponse
	req := CredentialsRequest{Username: username, Password: password}
	if err := b.do(ctx, http.MethodPost, "/api/auth/login", req, &out); err != nil {
		return TokenResponse{}, fmt.Errorf("login: %w", err)
	}
	return out, nil
}

// CertificateURL returns a time-limited link to the archived badge certificate.
func (b *HTTPBackend) CertificateURL(ctx context.Context, id domain.BadgeID) (string, error) {
	var out CertificateResponse
	if err := b.do(ctx, http.MethodGet, "/api/badges/"+id.String()+"/certificate", nil, &out); err != nil {
		return "", fmt.Errorf("get certificate url: %w", err)
	}
	return out.URL, nil
}

func (b *HTTPBackend) Ping(ctx context.Context) error {
	if err := b.do(ctx, http.MethodGet, "/api/health", nil, nil); err != nil {
		return fmt.Errorf("ping ledger: %w", err)
	}
	return nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.tokens != nil {
		if token := b.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remote := &RemoteError{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			remote.Message = payload.Error
			remote.FromLedger = true
		} else {
			remote.Message = strings.TrimSpace(string(respBody))
		}
		return remote
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func badgesFromJSON(in []BadgeJSON) []domain.SkillBadge {
	out := make([]domain.SkillBadge, len(in))
	for i := range in {
		out[i] = in[i].Domain()
	}
	return out
}
