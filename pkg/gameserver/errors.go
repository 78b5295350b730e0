package gameserver

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotConfigured = errors.New("game server client not configured")

type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("game server api error (%d): %s", e.Status, e.Message)
}

// IsRejection reports whether err is a definitive refusal from the game server
// (4xx other than 408/429) rather than a transport or availability problem.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusRequestTimeout || apiErr.Status == http.StatusTooManyRequests {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
