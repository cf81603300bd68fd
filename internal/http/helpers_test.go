package http_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	api "github.com/tazhibayda/feed-service/internal/http"
	"github.com/tazhibayda/feed-service/internal/provider/memory"
	"github.com/tazhibayda/feed-service/internal/security"
)

func init() {
	security.BcryptCost = 4
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	T       *testing.T
	Backend *memory.Backend
	Handler *api.Handler
	Router  *gin.Engine
}

func newTestEnv(t *testing.T, opts ...func(*api.Handler)) *testEnv {
	t.Helper()
	b := memory.New()
	h := api.NewHandler(b, nil, "feed.events")
	h.Dev = true
	for _, o := range opts {
		o(h)
	}
	return &testEnv{T: t, Backend: b, Handler: h, Router: api.NewRouter(h)}
}

func (e *testEnv) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	e.Router.ServeHTTP(w, req)
	return w
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("mongo down") }

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
