package ws

import (
	"net/http"
	"regexp"

	"github.com/segmentio/ksuid"

	"teams-chat/internal/auth"
)

var meetingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func newConnID() string {
	return ksuid.New().String()
}

// tokenFromRequest reads the bearer token from the Authorization header, falling
// back to the token query parameter browsers use for websocket handshakes.
func tokenFromRequest(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
