package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
)

const (
	requestIDKey = "X-Request-ID"
	clientKey    = "client"
	tokenCookie  = "feed_token"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDKey, id)
		c.Next()
	}
}

// Tracing opens a span per request so repo spans and WithDD log lines share
// one trace.
func Tracing(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpanFromContext(c.Request.Context(), "http.request",
			tracer.ServiceName(service),
			tracer.ResourceName(c.Request.Method+" "+route),
			tracer.SpanType(ext.SpanTypeWeb),
			tracer.Tag(ext.HTTPMethod, c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetTag(ext.HTTPCode, strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetTag(ext.Error, c.Errors.Last())
		}
		span.Finish()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get(requestIDKey)
		log.WithDD(c.Request.Context()).Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.Any("request_id", rid),
		)
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.InFlight.Inc()
		start := time.Now()
		c.Next()
		metrics.InFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// bearer reads the ID token from the Authorization header, falling back to the
// session cookie set for the browser page.
func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if v, err := c.Cookie(tokenCookie); err == nil {
		return v
	}
	return ""
}

// Auth resolves the caller's token into a provider client for the request.
// With required unset, a missing or rejected token leaves the client signed out.
func (h *Handler) Auth(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := provider.NewClient(h.Backend)
		tok := bearer(c)
		err := client.Resolve(c.Request.Context(), tok)
		if required && (tok == "" || err != nil) {
			msg := "missing bearer"
			if tok != "" {
				msg = "invalid token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(clientKey, client)
		c.Next()
	}
}
