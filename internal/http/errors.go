package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tazhibayda/feed-service/internal/gateway"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/view"
)

var codeStatus = map[string]int{
	provider.CodeEmailInUse:        http.StatusConflict,
	provider.CodeInvalidEmail:      http.StatusBadRequest,
	provider.CodeWeakPassword:      http.StatusBadRequest,
	provider.CodeUserDisabled:      http.StatusForbidden,
	provider.CodeUserNotFound:      http.StatusUnauthorized,
	provider.CodeWrongPassword:     http.StatusUnauthorized,
	provider.CodeInvalidCredential: http.StatusUnauthorized,
	provider.CodeTooManyRequests:   http.StatusTooManyRequests,
	provider.CodeInvalidToken:      http.StatusUnauthorized,
	provider.CodeInvalidCode:       http.StatusBadRequest,
	provider.CodePermissionDenied:  http.StatusForbidden,
	provider.CodeNotFound:          http.StatusNotFound,
	provider.CodeInvalidArgument:   http.StatusBadRequest,
	provider.CodeUnavailable:       http.StatusServiceUnavailable,
}

func statusOf(err error) int {
	var ve *gateway.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, view.ErrWrongView):
		return http.StatusConflict
	case errors.Is(err, view.ErrClosed):
		return http.StatusGone
	}
	if st, ok := codeStatus[provider.Code(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": message}, plus the provider code when there is one.
func fail(c *gin.Context, err error) {
	body := gin.H{"error": gateway.Message(err)}
	if code := provider.Code(err); code != "" {
		body["code"] = code
	}
	var ve *gateway.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	c.AbortWithStatusJSON(statusOf(err), body)
}
