package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"go.uber.org/zap"
)

// respondInternal answers 503 for store outages and 500 otherwise, recording an api_error event.
func (r *Router) respondInternal(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	if errors.Is(err, system.ErrStoreUnavailable) {
		status = http.StatusServiceUnavailable
		code = "service_unavailable"
	}

	r.logger.Error("api_error",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err),
	)
	r.events.Log(c.Request.Context(), system.EventAPIError, map[string]any{
		"path":       c.FullPath(),
		"method":     c.Request.Method,
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
	})

	c.JSON(status, gin.H{"success": false, "error": code})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad_request", "message": message})
}

// bindingMessage turns binder errors into a caller-facing sentence.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s is out of range", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
