package http

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed web/index.html
var indexHTML []byte

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Tracing("feed-service"))
	r.Use(Metrics())
	r.Use(Logger())

	signIn := RateLimit(NewRateLimiter(h.SignInPerMin, time.Minute))
	writes := RateLimit(NewRateLimiter(h.RateLimitPerMin, time.Minute))

	r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML) })
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", signIn, h.Auth(false), h.Register)
		auth.POST("/login", signIn, h.Auth(false), h.Login)
		auth.GET("/verify", h.Auth(false), h.Verify)
		auth.POST("/logout", h.Auth(true), h.Logout)
		auth.GET("/me", h.Auth(true), h.Me)
	}

	api := r.Group("/api", h.Auth(true))
	{
		api.GET("/posts", h.ListPosts)
		api.POST("/posts", writes, h.CreatePost)
		api.GET("/categories", h.ListCategories)
		api.POST("/categories", writes, h.CreateCategory)
	}

	feed := r.Group("/api/feed")
	{
		feed.GET("/stream", h.Stream)
		s := feed.Group("/sessions/:id")
		s.POST("/login", signIn, h.SessionLogin)
		s.POST("/signup", signIn, h.SessionSignup)
		s.POST("/navigate", h.SessionNavigate)
		s.POST("/category", h.SessionCategory)
		s.POST("/posts", writes, h.SessionPost)
		s.POST("/categories", writes, h.SessionCategoryCreate)
		s.POST("/logout", h.SessionLogout)
	}
	return r
}
