package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/format"
	"github.com/tazhibayda/feed-service/internal/gateway"
	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/queue"
)

// Pinger reports backend health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Backend  provider.Backend
	Events   queue.Publisher
	Exchange string

	// FeedLimit caps post queries and live feeds.
	FeedLimit int
	TokenTTL  time.Duration
	// Dev exposes verification codes in register responses.
	Dev bool

	SignInPerMin    int
	RateLimitPerMin int

	Health   []Pinger
	Sessions *Sessions
}

func NewHandler(b provider.Backend, pub queue.Publisher, exchange string) *Handler {
	if pub == nil {
		pub = queue.NewNoop()
	}
	return &Handler{
		Backend:         b,
		Events:          pub,
		Exchange:        exchange,
		FeedLimit:       50,
		TokenTTL:        24 * time.Hour,
		SignInPerMin:    10,
		RateLimitPerMin: 60,
		Sessions:        NewSessions(),
	}
}

func (h *Handler) gatewayFor(client *provider.Client) *gateway.Gateway {
	return gateway.New(client, gateway.WithEvents(h.Events, h.Exchange), gateway.WithLogger(log.L()))
}

// gw returns the request's gateway; Auth must have run.
func (h *Handler) gw(c *gin.Context) *gateway.Gateway {
	v, _ := c.Get(clientKey)
	return h.gatewayFor(v.(*provider.Client))
}

func reqCtx(c *gin.Context) context.Context {
	rid, _ := c.Get(requestIDKey)
	id, _ := rid.(string)
	return gateway.WithRequestID(c.Request.Context(), id)
}

func (h *Handler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, token, int(h.TokenTTL.Seconds()), "/", "", !h.Dev, true)
}

func (h *Handler) clearTokenCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, "", -1, "/", "", !h.Dev, true)
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type authResp struct {
	Token      string       `json:"token"`
	User       *domain.User `json:"user"`
	VerifyCode string       `json:"verify_token_dev,omitempty"`
}

// Register godoc
// @Summary Register user
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body credentialsReq true "register"
// @Success 201 {object} authResp
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var in credentialsReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	g := h.gw(c)
	reg, err := g.Register(reqCtx(c), in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	token := g.Client().CurrentUser().Token
	h.setTokenCookie(c, token)

	out := authResp{Token: token, User: &reg.User}
	if h.Dev {
		out.VerifyCode = reg.VerificationCode
	}
	c.JSON(http.StatusCreated, out)
}

// Login godoc
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body credentialsReq true "login"
// @Success 200 {object} authResp
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in credentialsReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	g := h.gw(c)
	u, err := g.Authenticate(reqCtx(c), in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	token := g.Client().CurrentUser().Token
	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, authResp{Token: token, User: u})
}

// Logout godoc
// @Summary Logout
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} map[string]string
// @Router /api/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if err := h.gw(c).Logout(reqCtx(c)); err != nil {
		fail(c, err)
		return
	}
	h.clearTokenCookie(c)
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /api/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	g := h.gw(c)
	u := g.CurrentUser()
	p, err := g.GetProfile(reqCtx(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             u.ID,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
		"created_at":     p.CreatedAt,
		"last_login":     p.LastLogin,
	})
}

// Verify godoc
// @Summary Confirm email address
// @Tags auth
// @Produce json
// @Param code query string true "verification code"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /api/auth/verify [get]
func (h *Handler) Verify(c *gin.Context) {
	if err := h.gw(c).ConfirmEmail(reqCtx(c), c.Query("code")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

type postReq struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// ListPosts godoc
// @Summary Recent posts, newest first
// @Tags posts
// @Security BearerAuth
// @Produce json
// @Param category query string false "category filter; empty or All for every post"
// @Param limit query int false "max posts"
// @Success 200 {array} format.FormattedPost
// @Failure 401 {object} map[string]string
// @Router /api/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	limit := h.FeedLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v < limit {
		limit = v
	}
	posts, err := h.gw(c).ListPosts(reqCtx(c), c.Query("category"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	now := time.Now()
	out := make([]format.FormattedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, format.FormatPost(p, now))
	}
	c.JSON(http.StatusOK, out)
}

// CreatePost godoc
// @Summary Create post
// @Tags posts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body postReq true "post"
// @Success 201 {object} domain.Post
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var in postReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.gw(c).CreatePost(reqCtx(c), in.Content, in.Category)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type categoryReq struct {
	Name string `json:"name"`
}

// ListCategories godoc
// @Summary Categories, oldest first
// @Tags categories
// @Security BearerAuth
// @Produce json
// @Success 200 {array} domain.Category
// @Failure 401 {object} map[string]string
// @Router /api/categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	cs, err := h.gw(c).ListCategories(reqCtx(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// CreateCategory godoc
// @Summary Create category
// @Tags categories
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body categoryReq true "category"
// @Success 201 {object} domain.Category
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/categories [post]
func (h *Handler) CreateCategory(c *gin.Context) {
	var in categoryReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cat, err := h.gw(c).CreateCategory(reqCtx(c), in.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range h.Health {
		g.Go(func() error { return p.Ping(gctx) })
	}
	if err := g.Wait(); err != nil {
		log.WithDD(c.Request.Context()).Warn("health check", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
