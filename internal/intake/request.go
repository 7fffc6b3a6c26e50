// Package intake classifies submission requests and decodes their bodies
// into a nested payload plus any uploaded files.
package intake

import (
	"net"
	"net/http"
	"strings"
)

// Request is what the rest of the pipeline needs to know about the inbound
// HTTP request, read once at the top of the handler.
type Request struct {
	Method      string
	ContentType string
	// Origin is empty when HasOrigin is false.
	Origin    string
	HasOrigin bool
	APIKey    string
	AJAX      bool
	IPAddress string
	UserAgent string
}

// Classify extracts the request attributes the submission pipeline branches on.
func Classify(r *http.Request) Request {
	origin := r.Header.Get("Origin")
	return Request{
		Method:      r.Method,
		ContentType: r.Header.Get("Content-Type"),
		Origin:      origin,
		HasOrigin:   origin != "",
		APIKey:      r.Header.Get("X-API-Key"),
		AJAX:        IsAJAX(r),
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
	}
}

// IsAJAX reports whether the caller is script-driven and should receive JSON
// instead of a redirect.
func IsAJAX(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// clientIP expects RemoteAddr to have been rewritten by the RealIP middleware.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
