package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeit/storeit/internal/account"
	"github.com/storeit/storeit/internal/actions"
	"github.com/storeit/storeit/internal/backend"
	"github.com/storeit/storeit/internal/config"
	"github.com/storeit/storeit/internal/models"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type stubAccounts struct {
	sessions  map[string]*account.Account
	deleteErr error
}

func (f *stubAccounts) CreateEmailToken(_ context.Context, email string) (string, error) {
	return "acct-" + email, nil
}

func (f *stubAccounts) CreateSession(_ context.Context, accountID, code string) (*account.Session, error) {
	if code != "123456" {
		return nil, account.ErrInvalidCode
	}
	secret := "secret-" + accountID
	f.sessions[secret] = &account.Account{ID: accountID, Email: "new@x.com"}
	return &account.Session{ID: "sess", AccountID: accountID, Secret: secret}, nil
}

func (f *stubAccounts) CreatePasswordSession(context.Context, string, string) (*account.Session, error) {
	return nil, account.ErrInvalidCredentials
}

func (f *stubAccounts) CreateOAuthSession(_ context.Context, email string) (*account.Session, error) {
	secret := "oauth-" + email
	f.sessions[secret] = &account.Account{ID: "acct-" + email, Email: email}
	return &account.Session{ID: "sess", AccountID: "acct-" + email, Secret: secret}, nil
}

func (f *stubAccounts) GetAccount(_ context.Context, secret string) (*account.Account, error) {
	acct, ok := f.sessions[secret]
	if !ok {
		return nil, account.ErrInvalidSession
	}
	return acct, nil
}

func (f *stubAccounts) GetAccountByID(_ context.Context, id string) (*account.Account, error) {
	for _, a := range f.sessions {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, account.ErrInvalidSession
}

func (f *stubAccounts) DeleteSession(_ context.Context, secret string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, secret)
	return nil
}

func (f *stubAccounts) UpdatePassword(context.Context, string, string) error { return nil }
func (f *stubAccounts) VerifyPassword(context.Context, string, string) error { return nil }

type stubUsers struct {
	byEmail   map[string]*models.User
	byAccount map[string]*models.User
}

func (f *stubUsers) CreateUser(_ context.Context, u *models.User) error {
	f.byEmail[u.Email] = u
	f.byAccount[u.AccountID] = u
	return nil
}

func (f *stubUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (f *stubUsers) GetUserByAccountID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.byAccount[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

type stubFiles struct{ files map[string]*models.File }

func (f *stubFiles) CreateFile(_ context.Context, file *models.File) error {
	f.files[file.ID] = file
	return nil
}

func (f *stubFiles) GetFile(_ context.Context, id string) (*models.File, error) {
	if file, ok := f.files[id]; ok {
		return file, nil
	}
	return nil, models.ErrNotFound
}

func (f *stubFiles) ListFiles(context.Context, models.ListOptions) ([]*models.File, error) {
	var out []*models.File
	for _, file := range f.files {
		out = append(out, file)
	}
	return out, nil
}

func (f *stubFiles) RenameFile(context.Context, string, string) error        { return nil }
func (f *stubFiles) UpdateFileUsers(context.Context, string, []string) error { return nil }
func (f *stubFiles) DeleteFile(context.Context, string) error                { return nil }
func (f *stubFiles) StorageUsed(context.Context, string) (int64, error)      { return 0, nil }
func (f *stubFiles) UsageByType(context.Context, string) (map[string]models.TypeUsage, error) {
	return map[string]models.TypeUsage{}, nil
}

type stubBlobs struct{ objects map[string][]byte }

func (f *stubBlobs) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, 0, errors.New("no such object")
	}
	if length <= 0 {
		length = int64(len(data)) - offset
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), end - offset, nil
}

func (f *stubBlobs) PutObject(_ context.Context, key string, body io.Reader, _ int64) error {
	data, _ := io.ReadAll(body)
	f.objects[key] = data
	return nil
}

func (f *stubBlobs) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *stubBlobs) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

// ─── Fixture ────────────────────────────────────────────────────────────────

type apiFixture struct {
	server   *Server
	handler  http.Handler
	accounts *stubAccounts
	users    *stubUsers
	files    *stubFiles
	blobs    *stubBlobs
}

// newAPIFixture wires a server over stub backends with one live
// session: cookie value "alice-secret" for user alice.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	alice := &account.Account{ID: "acct-alice", Email: "alice@x.com"}
	accounts := &stubAccounts{sessions: map[string]*account.Account{"alice-secret": alice}}
	users := &stubUsers{byEmail: map[string]*models.User{}, byAccount: map[string]*models.User{}}
	users.CreateUser(context.Background(), &models.User{
		ID: "user-alice", AccountID: "acct-alice", Email: "alice@x.com", FullName: "Alice",
	})
	files := &stubFiles{files: map[string]*models.File{}}
	blobs := &stubBlobs{objects: map[string][]byte{}}

	factory := backend.NewFactory(accounts, users, files, blobs)
	svc := actions.New(factory, actions.Config{
		MaxFileSize:     50 * 1024 * 1024,
		MaxTotalStorage: 2 * 1024 * 1024 * 1024,
		PublicURL:       "http://localhost:8080",
	})

	cfg := &config.Config{Environment: "development", MaxFileSize: 50 * 1024 * 1024}
	server := NewServer(svc, nil, cfg)

	return &apiFixture{
		server:   server,
		handler:  server.Handler(),
		accounts: accounts,
		users:    users,
		files:    files,
		blobs:    blobs,
	}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func jsonReq(method, url string, body any) *http.Request {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

// ─── OAuth sync ─────────────────────────────────────────────────────────────

func TestOAuthSyncMissingFields(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(jsonReq("POST", "/api/oauth-sync", map[string]string{
		"userId": "u1", "userEmail": "a@x.com",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(jsonReq("POST", "/api/oauth-sync", map[string]string{
		"sessionSecret": "s", "userEmail": "a@x.com",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthSyncUnresolvableSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(jsonReq("POST", "/api/oauth-sync", map[string]string{
		"sessionSecret": "never-valid", "userId": "u1", "userEmail": "a@x.com",
	}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOAuthSyncSuccess(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(jsonReq("POST", "/api/oauth-sync", map[string]string{
		"sessionSecret": "alice-secret",
		"userId":        "user-alice",
		"userEmail":     "alice@x.com",
		"userName":      "Alice",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool `json:"success"`
		SessionInfo struct {
			UserID    string `json:"userId"`
			UserEmail string `json:"userEmail"`
			CookieSet bool   `json:"cookieSet"`
		} `json:"sessionInfo"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.SessionInfo.CookieSet)
	assert.Equal(t, "alice@x.com", resp.SessionInfo.UserEmail)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "alice-secret", cookie.Value)

	// The redundant raw header is present alongside the structured one.
	assert.GreaterOrEqual(t, len(rec.Result().Header.Values("Set-Cookie")), 2)
}

// ─── OAuth return ───────────────────────────────────────────────────────────

func TestOAuthReturnMissingParams(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/oauth", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/sign-in?error=")
	assert.Nil(t, sessionCookie(rec), "no cookie on failure")
}

func TestOAuthReturnSuccess(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/oauth?userId=user-alice&secret=alice-secret", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "alice-secret", cookie.Value)
}

// ─── Verify ─────────────────────────────────────────────────────────────────

func TestVerifySetsCookieAttributes(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(jsonReq("POST", "/api/v1/auth/verify", map[string]string{
		"accountId": "acct-new", "code": "123456",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int((30 * 24 * 3600)), cookie.MaxAge)
	assert.False(t, cookie.Secure, "secure only in production")
}

func TestVerifyWrongCode(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(jsonReq("POST", "/api/v1/auth/verify", map[string]string{
		"accountId": "acct-new", "code": "000000",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

// ─── Me and sign-out ────────────────────────────────────────────────────────

func TestMeWithoutSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User *models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.User, "absence is a null user, not an error")
}

func TestMeWithSession(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User *models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice@x.com", resp.User.Email)
}

func TestSignOutClearsCookie(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/sign-in", rec.Header().Get("Location"))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestSignOutClearsCookieOnBackendFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.accounts.deleteErr = errors.New("backend down")

	req := httptest.NewRequest("POST", "/api/v1/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "cookie must be cleared even when deletion fails")
	assert.Empty(t, cookie.Value)
}

// ─── Protected routes ───────────────────────────────────────────────────────

func TestFilesRequireSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/files", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListFilesAuthorized(t *testing.T) {
	f := newAPIFixture(t)
	f.files.files["f1"] = &models.File{ID: "f1", Name: "a.pdf", OwnerID: "user-alice"}

	req := httptest.NewRequest("GET", "/api/v1/files?sort=size-asc", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Files []*models.File `json:"files"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Total)
}

func TestDownloadStreamsContent(t *testing.T) {
	f := newAPIFixture(t)
	f.blobs.objects["blob-1"] = []byte("file content here")
	f.files.files["f1"] = &models.File{
		ID: "f1", Name: "a.txt", Extension: "txt",
		Size: 17, BucketFileID: "blob-1", OwnerID: "user-alice",
	}

	req := httptest.NewRequest("GET", "/api/v1/files/f1/download", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "file content here", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.txt")
}

func TestDownloadRange(t *testing.T) {
	f := newAPIFixture(t)
	f.blobs.objects["blob-1"] = []byte("0123456789")
	f.files.files["f1"] = &models.File{
		ID: "f1", Name: "digits.txt", Extension: "txt",
		Size: 10, BucketFileID: "blob-1", OwnerID: "user-alice",
	}

	req := httptest.NewRequest("GET", "/api/v1/files/f1/download", nil)
	req.Header.Set("Range", "bytes=2-5")
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-secret"})
	rec := f.do(req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
}

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		header   string
		size     int64
		offset   int64
		length   int64
		hasRange bool
	}{
		{"", 100, 0, 100, false},
		{"bytes=0-49", 100, 0, 50, true},
		{"bytes=50-", 100, 50, 50, true},
		{"bytes=-10", 100, 90, 10, true},
		{"garbage", 100, 0, 100, false},
		{"bytes=100-", 10, 9, 1, true},
		{"bytes=10-5", 100, 10, 90, true},
		{"bytes=0-999", 10, 0, 10, true},
	}
	for _, tt := range tests {
		offset, length, hasRange := parseRangeHeader(tt.header, tt.size)
		if offset != tt.offset || length != tt.length || hasRange != tt.hasRange {
			t.Errorf("parseRangeHeader(%q) = %d %d %v, want %d %d %v",
				tt.header, offset, length, hasRange, tt.offset, tt.length, tt.hasRange)
		}
	}
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ok"))
}
