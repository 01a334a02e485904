package websocket

import (
	"net/http"
	"net/url"
)

// AllowOrigin returns the origin policy shared by the websocket upgrader,
// socket.io and the HTTP CORS middleware. An empty list allows the serving
// host itself and loopback pages; "*" allows everything.
func AllowOrigin(allowed []string) func(r *http.Request, origin string) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}

	return func(r *http.Request, origin string) bool {
		if origin == "" {
			return false
		}
		if set["*"] || set[origin] {
			return true
		}
		if len(set) > 0 {
			return false
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return false
		}
		if r != nil && parsed.Host == r.Host {
			return true
		}
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
		return false
	}
}
