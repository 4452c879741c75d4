package apiclient

import (
	"sort"
	"strings"
)

// AuthStrategy selects which credential a request carries
type AuthStrategy int

const (
	AuthNone AuthStrategy = iota
	AuthBearer
	AuthAdminKey
)

func (s AuthStrategy) String() string {
	switch s {
	case AuthBearer:
		return "bearer"
	case AuthAdminKey:
		return "admin_key"
	default:
		return "none"
	}
}

// Route maps a backend path prefix to an auth strategy. Entry routes are the
// credential exchange endpoints where a 401 means bad credentials rather
// than an expired session.
type Route struct {
	Prefix string
	Auth   AuthStrategy
	Entry  bool
}

// DefaultRoutes is the routing table of the reservation backend
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/login", Auth: AuthNone, Entry: true},
		{Prefix: "/signup", Auth: AuthNone, Entry: true},
		{Prefix: "/admin", Auth: AuthAdminKey},
		{Prefix: "/trains/create", Auth: AuthAdminKey},
		{Prefix: "/trains", Auth: AuthBearer},
		{Prefix: "/user", Auth: AuthBearer},
	}
}

// RoutingTable resolves paths to routes by longest matching prefix.
// Prefixes match whole path segments only, so "/trains" does not match
// "/trainsets".
type RoutingTable struct {
	routes   []Route
	fallback Route
}

// NewRoutingTable builds a table from rules; unmatched paths use fallback auth
func NewRoutingTable(rules []Route, fallback AuthStrategy) *RoutingTable {
	routes := make([]Route, 0, len(rules))
	for _, r := range rules {
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		routes = append(routes, r)
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})

	return &RoutingTable{
		routes:   routes,
		fallback: Route{Prefix: "", Auth: fallback},
	}
}

// Match returns the route for path. The query string is ignored.
func (t *RoutingTable) Match(path string) Route {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = "/" + strings.TrimLeft(path, "/")

	for _, r := range t.routes {
		if path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r
		}
	}
	return t.fallback
}

// Strategy returns the auth strategy for path
func (t *RoutingTable) Strategy(path string) AuthStrategy {
	return t.Match(path).Auth
}
