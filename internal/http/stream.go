package http

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/view"
)

const heartbeat = 25 * time.Second

// latest is a Renderer that keeps only the newest view for a slow reader.
type latest chan view.View

func (l latest) Render(v view.View) {
	select {
	case <-l:
	default:
	}
	select {
	case l <- v:
	default:
	}
}

// Session is one connected page: its own provider client and controller.
type Session struct {
	ID     string
	Client *provider.Client
	Ctrl   *view.Controller
	views  latest
}

type Sessions struct {
	mu   sync.Mutex
	byID map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*Session)}
}

func (s *Sessions) add(sess *Session) {
	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()
	metrics.FeedSessions.Inc()
}

func (s *Sessions) remove(id string) {
	s.mu.Lock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if ok {
		metrics.FeedSessions.Dec()
	}
}

func (s *Sessions) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Stream godoc
// @Summary Live view stream
// @Description Server-Sent Events. The first event is "session" with the id used by the
// @Description session command endpoints; every later "view" event is a full view snapshot.
// @Tags feed
// @Produce text/event-stream
// @Success 200
// @Router /api/feed/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	client := provider.NewClient(h.Backend)
	sess := &Session{
		ID:     uuid.NewString(),
		Client: client,
		views:  make(latest, 1),
	}
	sess.Ctrl = view.New(h.gatewayFor(client), sess.views, h.FeedLimit)
	h.Sessions.add(sess)
	defer func() {
		sess.Ctrl.Close()
		h.Sessions.remove(sess.ID)
	}()

	sess.Ctrl.Start()
	if err := client.Resolve(c.Request.Context(), bearer(c)); err != nil {
		log.WithDD(c.Request.Context()).Info("stream token rejected", zap.String("code", provider.Code(err)))
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("session", gin.H{"id": sess.ID})
	c.Writer.Flush()

	ping := time.NewTicker(heartbeat)
	defer ping.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case v := <-sess.views:
			c.SSEvent("view", v)
		case <-ping.C:
			c.SSEvent("ping", "")
		}
		return true
	})
}

type navigateReq struct {
	To string `json:"to"`
}

type selectReq struct {
	Category string `json:"category"`
}

// session resolves :id or aborts with 404.
func (h *Handler) session(c *gin.Context) *Session {
	sess := h.Sessions.Get(c.Param("id"))
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown session"})
	}
	return sess
}

// SessionLogin godoc
// @Summary Sign in a stream session
// @Tags feed
// @Accept json
// @Param id path string true "session id"
// @Param payload body credentialsReq true "login"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/feed/sessions/{id}/login [post]
func (h *Handler) SessionLogin(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in credentialsReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := sess.Ctrl.Login(reqCtx(c), in.Email, in.Password); err != nil {
		fail(c, err)
		return
	}
	h.signedIn(c, sess)
}

// SessionSignup godoc
// @Summary Create an account from a stream session
// @Tags feed
// @Accept json
// @Param id path string true "session id"
// @Param payload body signupReq true "signup"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/feed/sessions/{id}/signup [post]
func (h *Handler) SessionSignup(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in signupReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := sess.Ctrl.Signup(reqCtx(c), in.Email, in.Password, in.ConfirmPassword); err != nil {
		fail(c, err)
		return
	}
	h.signedIn(c, sess)
}

func (h *Handler) signedIn(c *gin.Context, sess *Session) {
	if u := sess.Client.CurrentUser(); u != nil {
		h.setTokenCookie(c, u.Token)
	}
	c.Status(http.StatusNoContent)
}

// SessionNavigate godoc
// @Summary Switch between the login and signup forms
// @Tags feed
// @Accept json
// @Param id path string true "session id"
// @Param payload body navigateReq true "target form: login or signup"
// @Success 204
// @Failure 409 {object} map[string]string
// @Router /api/feed/sessions/{id}/navigate [post]
func (h *Handler) SessionNavigate(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in navigateReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var err error
	switch view.Mode(in.To) {
	case view.ModeSignup:
		err = sess.Ctrl.ShowSignup()
	case view.ModeLogin:
		err = sess.Ctrl.ShowLogin()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SessionCategory godoc
// @Summary Change the category filter of the live feed
// @Tags feed
// @Accept json
// @Param id path string true "session id"
// @Param payload body selectReq true "category; empty or All for every post"
// @Success 204
// @Failure 409 {object} map[string]string
// @Router /api/feed/sessions/{id}/category [post]
func (h *Handler) SessionCategory(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in selectReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := sess.Ctrl.SelectCategory(in.Category); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SessionPost godoc
// @Summary Post under the selected category
// @Tags feed
// @Accept json
// @Produce json
// @Param id path string true "session id"
// @Param payload body postReq true "content; category is taken from the session"
// @Success 201 {object} domain.Post
// @Failure 400 {object} map[string]string
// @Router /api/feed/sessions/{id}/posts [post]
func (h *Handler) SessionPost(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in postReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := sess.Ctrl.SubmitPost(reqCtx(c), in.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// SessionCategoryCreate godoc
// @Summary Create a category from a stream session
// @Tags feed
// @Accept json
// @Produce json
// @Param id path string true "session id"
// @Param payload body categoryReq true "category"
// @Success 201 {object} domain.Category
// @Failure 400 {object} map[string]string
// @Router /api/feed/sessions/{id}/categories [post]
func (h *Handler) SessionCategoryCreate(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	var in categoryReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cat, err := sess.Ctrl.SubmitCategory(reqCtx(c), in.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// SessionLogout godoc
// @Summary Sign out a stream session
// @Tags feed
// @Param id path string true "session id"
// @Success 204
// @Failure 409 {object} map[string]string
// @Router /api/feed/sessions/{id}/logout [post]
func (h *Handler) SessionLogout(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	if err := sess.Ctrl.Logout(reqCtx(c)); err != nil {
		fail(c, err)
		return
	}
	h.clearTokenCookie(c)
	c.Status(http.StatusNoContent)
}
