// Package policy decides whether a request may reach an endpoint: origin,
// API key and method, in that order.
package policy

import (
	"strings"

	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/auth"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/models"
)

// NullOrigin is both the Origin browsers send from opaque contexts and the
// value returned in Access-Control-Allow-Origin when an origin is refused.
const NullOrigin = "null"

// OriginAllowed reports whether req's Origin may submit to an endpoint
// restricted to allowed. An empty list, a missing Origin and the literal
// "null" origin are always allowed.
func OriginAllowed(allowed []string, req intake.Request) bool {
	if len(allowed) == 0 || !req.HasOrigin || req.Origin == NullOrigin {
		return true
	}
	for _, pattern := range allowed {
		if matchOrigin(strings.TrimSpace(pattern), req.Origin) {
			return true
		}
	}
	return false
}

// matchOrigin checks one allowed-domain entry. "*" matches anything,
// "*.example.com" matches origins ending in ".example.com", and a bare
// domain matches itself with either scheme.
func matchOrigin(pattern, origin string) bool {
	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(origin, pattern[1:])
	default:
		return origin == pattern ||
			origin == "https://"+pattern ||
			origin == "http://"+pattern
	}
}

// EchoOrigin picks the Access-Control-Allow-Origin value for responses to a
// request that passed (or was not subject to) the origin check.
func EchoOrigin(allowed []string, req intake.Request) string {
	switch {
	case req.Origin == NullOrigin:
		return NullOrigin
	case req.HasOrigin:
		return req.Origin
	case len(allowed) > 0:
		return allowed[0]
	default:
		return "*"
	}
}

// CheckAPIKey enforces the project key when the endpoint requires one.
func CheckAPIKey(ep *models.Endpoint, presented string) error {
	if !ep.RequireAPIKey {
		return nil
	}
	if presented == "" {
		return apierr.Unauthorized("API key required")
	}
	if !auth.VerifyAPIKey(ep.ProjectAPIKey, presented) {
		return apierr.Unauthorized("Invalid API key")
	}
	return nil
}

// CheckMethod requires the request method to equal the endpoint's configured
// method exactly. Endpoints without a configured method accept POST.
func CheckMethod(ep *models.Endpoint, method string) error {
	want := ep.Method
	if want == "" {
		want = "POST"
	}
	if method != want {
		return apierr.MethodNotAllowed("Method " + method + " not allowed. This endpoint accepts " + want)
	}
	return nil
}

// Gate runs the origin, API key and method checks. It always returns the
// origin to send back: "null" when the origin was refused, the echo origin
// otherwise.
func Gate(ep *models.Endpoint, req intake.Request) (string, error) {
	if !OriginAllowed(ep.AllowedDomains, req) {
		return NullOrigin, apierr.Forbidden("Origin not allowed")
	}
	origin := EchoOrigin(ep.AllowedDomains, req)
	if err := CheckAPIKey(ep, req.APIKey); err != nil {
		return origin, err
	}
	if err := CheckMethod(ep, req.Method); err != nil {
		return origin, err
	}
	return origin, nil
}
