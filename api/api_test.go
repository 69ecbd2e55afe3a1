package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvalente/taskspace/api"
	"github.com/rvalente/taskspace/secrets"
	"github.com/rvalente/taskspace/storage/memory"
)

// testClock is a mutable time source handed to the API so tests can
// step past pending-state deadlines without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupServer(t *testing.T) (*httptest.Server, *testClock) {
	t.Helper()
	repo := memory.NewRepository()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	codec, err := secrets.NewCodec(key)
	require.NoError(t, err)

	clock := newTestClock()
	a := api.New(repo, codec, api.WithClock(clock.Now))
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, clock
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func cookieValue(t *testing.T, client *http.Client, rawURL, name string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// doAuthJSON sends a mutating request with the CSRF cookie value echoed
// in the X-CSRF-Token header, the way the browser app does.
func doAuthJSON(t *testing.T, client *http.Client, method, rawURL string, body any) *http.Response {
	t.Helper()
	token := cookieValue(t, client, rawURL, "taskspace_csrf")
	return doJSON(t, client, method, rawURL, body, map[string]string{"X-CSRF-Token": token})
}

func signup(t *testing.T, client *http.Client, baseURL, email string) {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", map[string]string{
		"email":    email,
		"password": "correct-horse-battery",
		"confirm":  "correct-horse-battery",
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func signin(t *testing.T, client *http.Client, baseURL, email, password string) *http.Response {
	t.Helper()
	return doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSignupAndAuthState(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)

	signup(t, client, srv.URL, "alice@example.com")

	assert.NotEmpty(t, cookieValue(t, client, srv.URL, "taskspace_session"))
	assert.NotEmpty(t, cookieValue(t, client, srv.URL, "taskspace_csrf"))

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/state", nil, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[api.AuthResponse](t, resp)
	assert.True(t, state.Authenticated)
}

func TestSignupValidation(t *testing.T) {
	srv, _ := setupServer(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"ShortPassword", map[string]string{
			"email": "a@example.com", "password": "short", "confirm": "short",
		}, http.StatusBadRequest},
		{"ConfirmMismatch", map[string]string{
			"email": "a@example.com", "password": "correct-horse-battery", "confirm": "different-password",
		}, http.StatusBadRequest},
		{"MissingEmail", map[string]string{
			"password": "correct-horse-battery", "confirm": "correct-horse-battery",
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t)
			resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signup", tc.body, nil)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}

	t.Run("DuplicateEmail", func(t *testing.T) {
		client := newClient(t)
		signup(t, client, srv.URL, "dup@example.com")

		other := newClient(t)
		resp := doJSON(t, other, http.MethodPost, srv.URL+"/api/v1/auth/signup", map[string]string{
			"email":    "DUP@example.com", // normalization makes this the same account
			"password": "correct-horse-battery",
			"confirm":  "correct-horse-battery",
		}, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestSigninFailuresIndistinguishable(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "bob@example.com")

	readFailure := func(email, password string) (int, string) {
		c := newClient(t)
		resp := signin(t, c, srv.URL, email, password)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	wrongPassStatus, wrongPassBody := readFailure("bob@example.com", "not-the-password")
	unknownStatus, unknownBody := readFailure("nobody@example.com", "whatever-password")

	assert.Equal(t, http.StatusBadRequest, wrongPassStatus)
	assert.Equal(t, http.StatusBadRequest, unknownStatus)
	// A registered email and an unknown one must produce byte-identical
	// failures, or the endpoint leaks which addresses have accounts.
	assert.Equal(t, wrongPassBody, unknownBody)
}

func TestSigninRegeneratesSessionKey(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)

	// Touch the API anonymously so the client holds a pre-auth session
	// cookie an attacker could have planted.
	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/state", nil, nil)
	resp.Body.Close()
	before := cookieValue(t, client, srv.URL, "taskspace_session")
	require.NotEmpty(t, before)

	other := newClient(t)
	signup(t, other, srv.URL, "carol@example.com")

	resp = signin(t, client, srv.URL, "carol@example.com", "correct-horse-battery")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := cookieValue(t, client, srv.URL, "taskspace_session")
	assert.NotEqual(t, before, after, "session key must change when privilege changes")

	// The pre-auth key was destroyed by the rotation; replaying it must
	// not resolve to any session.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/auth/state", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "taskspace_session", Value: before})
	replay, err := (&http.Client{}).Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, replay.StatusCode)
	replayState := decodeBody[api.AuthResponse](t, replay)
	replay.Body.Close()
	assert.False(t, replayState.Authenticated, "old session key must be dead after rotation")

	// A failed signin must NOT rotate the key.
	beforeFail := after
	resp = signin(t, client, srv.URL, "carol@example.com", "wrong-password-here")
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, beforeFail, cookieValue(t, client, srv.URL, "taskspace_session"))
}

func TestCSRFTripleSubmit(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "dave@example.com")

	spacesURL := srv.URL + "/api/v1/spaces"
	body := map[string]string{"name": "Work"}

	t.Run("MissingHeader", func(t *testing.T) {
		resp := doJSON(t, client, http.MethodPost, spacesURL, body, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("WrongHeader", func(t *testing.T) {
		resp := doJSON(t, client, http.MethodPost, spacesURL, body, map[string]string{
			"X-CSRF-Token": "not-the-real-token",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("TamperedCookie", func(t *testing.T) {
		// Header carries the real token but the cookie copy disagrees.
		token := cookieValue(t, client, srv.URL, "taskspace_csrf")
		require.NotEmpty(t, token)
		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		client.Jar.SetCookies(u, []*http.Cookie{{Name: "taskspace_csrf", Value: "tampered-value"}})

		resp := doJSON(t, client, http.MethodPost, spacesURL, body, map[string]string{
			"X-CSRF-Token": token,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		// Restore the real cookie for later subtests.
		client.Jar.SetCookies(u, []*http.Cookie{{Name: "taskspace_csrf", Value: token}})
	})

	t.Run("SafeMethodPasses", func(t *testing.T) {
		resp := doJSON(t, client, http.MethodGet, spacesURL, nil, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("AllThreeMatch", func(t *testing.T) {
		resp := doAuthJSON(t, client, http.MethodPost, spacesURL, body)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestSignoutIdempotent(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "erin@example.com")

	resp := doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Signing out an already-anonymous session still succeeds.
	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/state", nil, nil)
	defer resp.Body.Close()
	state := decodeBody[api.AuthResponse](t, resp)
	assert.False(t, state.Authenticated)
}

// enrollTOTP generates and confirms a TOTP secret for the signed-in
// client, returning the plaintext seed.
func enrollTOTP(t *testing.T, client *http.Client, baseURL string, clock *testClock) string {
	t.Helper()
	resp := doAuthJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/totp/secret", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secretResp := decodeBody[api.TOTPSecretResponse](t, resp)
	require.NotEmpty(t, secretResp.Secret)
	require.NotEmpty(t, secretResp.OtpauthURL)
	require.Contains(t, secretResp.EnrollmentImage, "data:image/png;base64,")

	code, err := totp.GenerateCode(secretResp.Secret, clock.Now())
	require.NoError(t, err)

	resp = doAuthJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/totp/enable", map[string]string{"code": code})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[api.TOTPStatusResponse](t, resp)
	require.True(t, status.Enabled)
	return secretResp.Secret
}

func TestTOTPEnrollmentAndTwoFactorSignin(t *testing.T) {
	srv, clock := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "frank@example.com")

	secret := enrollTOTP(t, client, srv.URL, clock)

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/totp", nil, nil)
	defer resp.Body.Close()
	status := decodeBody[api.TOTPStatusResponse](t, resp)
	require.True(t, status.Enabled)

	resp = doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil)
	resp.Body.Close()

	// Password step alone no longer authenticates.
	resp = signin(t, client, srv.URL, "frank@example.com", "correct-horse-battery")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	auth := decodeBody[api.AuthResponse](t, resp)
	resp.Body.Close()
	require.False(t, auth.Authenticated)

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/state", nil, nil)
	state := decodeBody[api.AuthResponse](t, resp)
	resp.Body.Close()
	require.False(t, state.Authenticated)

	// The TOTP step completes the sign-in under a fresh session key.
	pendingKey := cookieValue(t, client, srv.URL, "taskspace_session")
	code, err := totp.GenerateCode(secret, clock.Now())
	require.NoError(t, err)
	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signin/totp", map[string]string{"code": code}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	auth = decodeBody[api.AuthResponse](t, resp)
	resp.Body.Close()
	assert.True(t, auth.Authenticated)
	assert.NotEqual(t, pendingKey, cookieValue(t, client, srv.URL, "taskspace_session"))
}

func TestTOTPEnableWrongCodeDropsEnrollment(t *testing.T) {
	srv, clock := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "grace@example.com")

	resp := doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/totp/secret", nil)
	secretResp := decodeBody[api.TOTPSecretResponse](t, resp)
	resp.Body.Close()

	resp = doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/totp/enable", map[string]string{"code": "000000"})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The failed attempt dropped the pending enrollment, so even the
	// right code is refused now.
	code, err := totp.GenerateCode(secretResp.Secret, clock.Now())
	require.NoError(t, err)
	resp = doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/totp/enable", map[string]string{"code": code})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/totp", nil, nil)
	status := decodeBody[api.TOTPStatusResponse](t, resp)
	resp.Body.Close()
	assert.False(t, status.Enabled)
}

func TestPendingLoginExpiry(t *testing.T) {
	srv, clock := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "heidi@example.com")
	secret := enrollTOTP(t, client, srv.URL, clock)

	resp := doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil)
	resp.Body.Close()

	t.Run("WithinWindow", func(t *testing.T) {
		resp := signin(t, client, srv.URL, "heidi@example.com", "correct-horse-battery")
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		clock.Advance(5 * time.Minute)
		code, err := totp.GenerateCode(secret, clock.Now())
		require.NoError(t, err)
		resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signin/totp", map[string]string{"code": code}, nil)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil)
		resp.Body.Close()
	})

	t.Run("PastWindow", func(t *testing.T) {
		resp := signin(t, client, srv.URL, "heidi@example.com", "correct-horse-battery")
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		clock.Advance(10*time.Minute + time.Second)
		code, err := totp.GenerateCode(secret, clock.Now())
		require.NoError(t, err)
		resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signin/totp", map[string]string{"code": code}, nil)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSigninTOTPFailuresIndistinguishable(t *testing.T) {
	srv, clock := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "ivan@example.com")
	enrollTOTP(t, client, srv.URL, clock)
	resp := doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/signout", nil)
	resp.Body.Close()

	readFailure := func(prep func(c *http.Client)) string {
		c := newClient(t)
		prep(c)
		resp := doJSON(t, c, http.MethodPost, srv.URL+"/api/v1/auth/signin/totp", map[string]string{"code": "123456"}, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	noPending := readFailure(func(c *http.Client) {})
	wrongCode := readFailure(func(c *http.Client) {
		resp := signin(t, c, srv.URL, "ivan@example.com", "correct-horse-battery")
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	// No-pending and wrong-code paths must be byte-identical.
	assert.Equal(t, noPending, wrongCode)
}

func TestSpaceCRUDAndVersionGuard(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "judy@example.com")

	// Signup provisions a default space.
	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/spaces", nil, nil)
	list := decodeBody[api.ListSpacesResponse](t, resp)
	resp.Body.Close()
	require.Len(t, list.Spaces, 1)
	assert.Equal(t, "Personal", list.Spaces[0].Name)

	resp = doAuthJSON(t, client, http.MethodPost, srv.URL+"/api/v1/spaces", map[string]string{"name": "Work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	space := decodeBody[api.SpaceResponse](t, resp)
	resp.Body.Close()

	spaceURL := srv.URL + "/api/v1/spaces/" + space.ID

	// Rename with the current version token.
	resp = doAuthJSON(t, client, http.MethodPut, spaceURL, map[string]any{
		"name":       "Work Renamed",
		"updated_at": space.UpdatedAt,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decodeBody[api.SpaceResponse](t, resp)
	resp.Body.Close()
	assert.Equal(t, "Work Renamed", renamed.Name)

	// The original token is now stale; the write must be refused.
	resp = doAuthJSON(t, client, http.MethodPut, spaceURL, map[string]any{
		"name":       "Lost Update",
		"updated_at": space.UpdatedAt,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Same guard on delete.
	resp = doAuthJSON(t, client, http.MethodDelete, spaceURL, map[string]any{
		"updated_at": space.UpdatedAt,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doAuthJSON(t, client, http.MethodDelete, spaceURL, map[string]any{
		"updated_at": renamed.UpdatedAt,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, spaceURL, nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTodoCRUDAndVersionGuard(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)
	signup(t, client, srv.URL, "kate@example.com")

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/spaces", nil, nil)
	list := decodeBody[api.ListSpacesResponse](t, resp)
	resp.Body.Close()
	require.Len(t, list.Spaces, 1)
	todosURL := srv.URL + "/api/v1/spaces/" + list.Spaces[0].ID + "/todos"

	resp = doAuthJSON(t, client, http.MethodPost, todosURL, map[string]string{
		"title": "Write report",
		"notes": "due friday",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	todo := decodeBody[api.TodoResponse](t, resp)
	resp.Body.Close()
	assert.False(t, todo.Done)

	todoURL := todosURL + "/" + todo.ID

	resp = doAuthJSON(t, client, http.MethodPut, todoURL, map[string]any{
		"done":       true,
		"updated_at": todo.UpdatedAt,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decodeBody[api.TodoResponse](t, resp)
	resp.Body.Close()
	assert.True(t, done.Done)
	assert.Equal(t, "Write report", done.Title, "omitted fields keep their values")

	// Concurrent-editor simulation: replay with the stale token.
	resp = doAuthJSON(t, client, http.MethodPut, todoURL, map[string]any{
		"title":      "Write report v2",
		"updated_at": todo.UpdatedAt,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, todosURL, nil, nil)
	todos := decodeBody[api.ListTodosResponse](t, resp)
	resp.Body.Close()
	require.Len(t, todos.Todos, 1)

	resp = doAuthJSON(t, client, http.MethodDelete, todoURL, map[string]any{
		"updated_at": done.UpdatedAt,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSpaceOwnership(t *testing.T) {
	srv, _ := setupServer(t)

	owner := newClient(t)
	signup(t, owner, srv.URL, "liam@example.com")
	resp := doJSON(t, owner, http.MethodGet, srv.URL+"/api/v1/spaces", nil, nil)
	list := decodeBody[api.ListSpacesResponse](t, resp)
	resp.Body.Close()
	require.Len(t, list.Spaces, 1)
	foreignURL := srv.URL + "/api/v1/spaces/" + list.Spaces[0].ID

	intruder := newClient(t)
	signup(t, intruder, srv.URL, "mallory@example.com")

	resp = doJSON(t, intruder, http.MethodGet, foreignURL, nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, intruder, http.MethodGet, foreignURL+"/todos", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRequireAuth(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/spaces", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/totp/secret", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSecurityHeaderPolicies(t *testing.T) {
	srv, _ := setupServer(t)
	client := newClient(t)

	t.Run("APIRoutesLockedDown", func(t *testing.T) {
		resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/state", nil, nil)
		defer resp.Body.Close()

		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		csp := resp.Header.Get("Content-Security-Policy")
		assert.Contains(t, csp, "script-src 'self';")
		assert.NotContains(t, csp, "unpkg.com")
	})

	// The docs viewers pull assets from CDNs; their pages carry a
	// policy that admits those origins.
	t.Run("DocsAdmitViewerCDNs", func(t *testing.T) {
		for _, path := range []string{"/api/v1/docs", "/api/v1/redoc"} {
			resp := doJSON(t, client, http.MethodGet, srv.URL+path, nil, nil)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			csp := resp.Header.Get("Content-Security-Policy")
			assert.Contains(t, csp, "https://unpkg.com")
			assert.Contains(t, csp, "https://cdn.jsdelivr.net")
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		}
	})
}
