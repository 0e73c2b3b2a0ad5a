package t402

import (
	"strings"
)

// RouteConfig is one protected (or explicitly public) route: its matcher
// pattern and the payment options it offers.
type RouteConfig struct {
	Pattern string // as declared: "GET /weather", "/weather", or "/api/*"
	Method  string // uppercase; "" means any method
	Path    string // path with any trailing "/*" stripped
	Wildcard bool
	Options []ResourceConfig // empty means the route is public

	// Extensions maps an extension key (e.g. "discovery") to the route's
	// raw declaration for that extension; the gate passes each through the
	// matching registered ResourceExtension's EnrichDeclaration before
	// emitting the 402 challenge. Unregistered keys pass through verbatim.
	Extensions map[string]interface{}
}

// requiresPayment reports whether this route has any declared payment
// option; public routes skip requirement-building and facilitator-support
// validation entirely.
func (r *RouteConfig) requiresPayment() bool {
	return len(r.Options) > 0
}

func parseRoutePattern(pattern string) (method, path string, wildcard bool) {
	trimmed := strings.TrimSpace(pattern)
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		method = strings.ToUpper(strings.TrimSpace(trimmed[:idx]))
		path = strings.TrimSpace(trimmed[idx+1:])
	} else {
		path = trimmed
	}
	if strings.HasSuffix(path, "/*") {
		wildcard = true
		path = strings.TrimSuffix(path, "/*")
		if path == "" {
			path = "/"
		}
	}
	return method, normalizePath(path), wildcard
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// NewRouteConfig builds a RouteConfig from a declaration pattern and its
// payment options.
func NewRouteConfig(pattern string, options ...ResourceConfig) RouteConfig {
	method, path, wildcard := parseRoutePattern(pattern)
	return RouteConfig{
		Pattern:  pattern,
		Method:   method,
		Path:     path,
		Wildcard: wildcard,
		Options:  options,
	}
}

// Router holds the declared routes and matches a request against them.
// Exact paths beat wildcard suffixes; method, when declared, must match.
type Router struct {
	routes []RouteConfig
}

func NewRouter(routes ...RouteConfig) *Router {
	return &Router{routes: routes}
}

func (rt *Router) Routes() []RouteConfig { return rt.routes }

// Match finds the best route for a request: an exact (non-wildcard) match
// beats a wildcard match; among equally-specific candidates the
// first-declared route wins.
func (rt *Router) Match(method, path string) (*RouteConfig, bool) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	var best *RouteConfig
	bestSpecificity := -1
	for i := range rt.routes {
		route := &rt.routes[i]
		if route.Method != "" && route.Method != method {
			continue
		}
		var matched bool
		var specificity int
		if route.Wildcard {
			matched = path == route.Path || strings.HasPrefix(path, route.Path+"/") || (route.Path == "/" && strings.HasPrefix(path, "/"))
			specificity = 0
		} else {
			matched = path == route.Path
			specificity = 1
		}
		if !matched {
			continue
		}
		if specificity > bestSpecificity {
			best, bestSpecificity = route, specificity
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// RequiresPayment reports whether the matched route (if any) declares
// payment options, used to skip gate work entirely for public routes.
func (rt *Router) RequiresPayment(method, path string) bool {
	route, ok := rt.Match(method, path)
	return ok && route.requiresPayment()
}
