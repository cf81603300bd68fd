package http_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/format"
	api "github.com/tazhibayda/feed-service/internal/http"
)

type authBody struct {
	Token      string      `json:"token"`
	User       domain.User `json:"user"`
	VerifyCode string      `json:"verify_token_dev"`
}

func register(t *testing.T, env *testEnv, email string) authBody {
	t.Helper()
	w := env.do("POST", "/api/auth/register", `{"email":"`+email+`","password":"secret1"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register code=%d body=%s", w.Code, w.Body.String())
	}
	var out authBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorOf(t *testing.T, body []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	s, _ := m["error"].(string)
	return s
}

func Test_Register_Me_Verify(t *testing.T) {
	env := newTestEnv(t)

	reg := register(t, env, "John@Example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "john@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.VerifyCode)

	w := env.do("GET", "/api/auth/me", "", bearer(reg.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "john@example.com", me["email"])
	assert.Equal(t, false, me["email_verified"])

	w = env.do("GET", "/api/auth/verify?code="+reg.VerifyCode, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do("GET", "/api/auth/verify?code="+reg.VerifyCode, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This confirmation link is invalid or has expired.", errorOf(t, w.Body.Bytes()))

	w = env.do("GET", "/api/auth/me", "", bearer(reg.Token))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, true, me["email_verified"])
}

func Test_Register_HidesCodeOutsideDev(t *testing.T) {
	env := newTestEnv(t, func(h *api.Handler) { h.Dev = false })
	reg := register(t, env, "a@b.com")
	assert.Empty(t, reg.VerifyCode)
}

func Test_Register_Errors(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "dup@example.com")

	w := env.do("POST", "/api/auth/register", `{"email":"dup@example.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "An account with this email already exists.", errorOf(t, w.Body.Bytes()))

	w = env.do("POST", "/api/auth/register", `{"email":"nope","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please enter a valid email address.", errorOf(t, w.Body.Bytes()))

	w = env.do("POST", "/api/auth/register", `{"email":"x@example.com","password":"123"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Password should be at least 6 characters.", errorOf(t, w.Body.Bytes()))

	w = env.do("POST", "/api/auth/register", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func Test_Login_Logout(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "u@e.com")

	w := env.do("POST", "/api/auth/login", `{"email":"u@e.com","password":"wrong12"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password.", errorOf(t, w.Body.Bytes()))

	w = env.do("POST", "/api/auth/login", `{"email":"u@e.com","password":"secret1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var lr authBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lr))
	ck := cookie(w, "feed_token")
	require.NotNil(t, ck)
	assert.Equal(t, lr.Token, ck.Value)
	assert.True(t, ck.HttpOnly)

	// the cookie alone authenticates
	w = env.do("GET", "/api/auth/me", "", map[string]string{"Cookie": "feed_token=" + lr.Token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("POST", "/api/auth/logout", "", bearer(lr.Token))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("GET", "/api/auth/me", "", bearer(lr.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", errorOf(t, w.Body.Bytes()))

	w = env.do("GET", "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing bearer", errorOf(t, w.Body.Bytes()))
}

func Test_Login_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(h *api.Handler) { h.SignInPerMin = 2 })
	for i := 0; i < 2; i++ {
		w := env.do("POST", "/api/auth/login", `{"email":"u@e.com","password":"secret1"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := env.do("POST", "/api/auth/login", `{"email":"u@e.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func Test_Posts(t *testing.T) {
	env := newTestEnv(t)
	tok := register(t, env, "poster@example.com").Token

	w := env.do("GET", "/api/posts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/posts", `{"content":"   "}`, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Post content cannot be empty.", errorOf(t, w.Body.Bytes()))

	long := strings.Repeat("é", 501)
	w = env.do("POST", "/api/posts", `{"content":"`+long+`"}`, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Post content must be 500 characters or less.", errorOf(t, w.Body.Bytes()))

	w = env.do("POST", "/api/posts", `{"content":"<b>hi</b> https://example.com/my-post"}`, bearer(tok))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p domain.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, domain.DefaultCategory, p.Category)
	assert.Equal(t, "poster@example.com", p.AuthorEmail)

	w = env.do("POST", "/api/posts", `{"content":"second","category":"Tech"}`, bearer(tok))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do("GET", "/api/posts?category=General", "", bearer(tok))
	require.Equal(t, http.StatusOK, w.Code)
	var list []format.FormattedPost
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.True(t, strings.HasPrefix(list[0].HTML, "&lt;b&gt;hi&lt;/b&gt; <a href="))
	require.Len(t, list[0].Previews, 1)
	assert.Equal(t, "My Post", list[0].Previews[0].Title)

	w = env.do("GET", "/api/posts?category=All&limit=1", "", bearer(tok))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Tech", list[0].Category)
}

func Test_Categories_AllowDuplicates(t *testing.T) {
	env := newTestEnv(t)
	tok := register(t, env, "c@example.com").Token

	w := env.do("POST", "/api/categories", `{"name":" "}`, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Category name cannot be empty.", errorOf(t, w.Body.Bytes()))

	for i := 0; i < 2; i++ {
		w = env.do("POST", "/api/categories", `{"name":"Tech"}`, bearer(tok))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w = env.do("GET", "/api/categories", "", bearer(tok))
	require.Equal(t, http.StatusOK, w.Code)
	var cs []domain.Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cs))
	require.Len(t, cs, 2)
	assert.NotEqual(t, cs[0].ID, cs[1].ID)
}

func Test_Healthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	env.Handler.Health = append(env.Handler.Health, downPinger{})
	w = env.do("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func Test_IndexPage(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/feed/stream")
	assert.Contains(t, w.Body.String(), `<option value="All">All messages</option>`)
}

func Test_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("POST", "/api/feed/sessions/nope/logout", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
