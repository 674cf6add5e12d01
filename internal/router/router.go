// Package router decides which request paths are image-optimizer rewrites.
package router

import (
	"sort"
	"strings"

	"example.com/spaserve/internal/config"
)

// Router holds the image route table.
type Router struct {
	// exactRoutes stores routes with MatchType "Exact", keyed by PathPattern.
	exactRoutes map[string]config.Route

	// prefixRoutes stores routes with MatchType "Prefix", sorted by
	// PathPattern length in descending order so the longest prefix wins.
	prefixRoutes []config.Route
}

// NewRouter builds a Router from routes. Routes are assumed to have been
// validated by the config loader.
func NewRouter(routes []config.Route) *Router {
	exactMap := make(map[string]config.Route)
	var prefixList []config.Route

	for _, route := range routes {
		switch route.MatchType {
		case config.MatchTypeExact:
			exactMap[route.PathPattern] = route
		case config.MatchTypePrefix:
			prefixList = append(prefixList, route)
		}
	}

	sort.SliceStable(prefixList, func(i, j int) bool {
		return len(prefixList[i].PathPattern) > len(prefixList[j].PathPattern)
	})

	return &Router{
		exactRoutes:  exactMap,
		prefixRoutes: prefixList,
	}
}

// FindRoute matches path (without query) against the table. Exact matches
// take precedence over prefix matches.
func (r *Router) FindRoute(path string) (config.Route, bool) {
	if route, ok := r.exactRoutes[path]; ok {
		return route, true
	}
	for _, route := range r.prefixRoutes {
		if strings.HasPrefix(path, route.PathPattern) {
			return route, true
		}
	}
	return config.Route{}, false
}

// Match reports whether path is an image route.
func (r *Router) Match(path string) bool {
	_, ok := r.FindRoute(path)
	return ok
}

// Len returns the number of configured routes.
func (r *Router) Len() int {
	return len(r.exactRoutes) + len(r.prefixRoutes)
}
