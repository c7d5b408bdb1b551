package server

import (
	"strings"

	"github.com/Tyrowin/pairchat/internal/relay"
)

// StatusResponse is returned by the root health endpoint.
type StatusResponse struct {
	Message string `json:"message"`
}

// OnlineUsersResponse is returned by GET /online-users.
type OnlineUsersResponse struct {
	Users []relay.User `json:"users"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// defaultDisplayName derives a name for users who connect without one.
func defaultDisplayName(userID string) string {
	runes := []rune(userID)
	if len(runes) > 8 {
		runes = runes[:8]
	}
	return "User_" + string(runes)
}
