package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteFinder resolves the route pattern serving a request. It returns ""
// when no route matches.
type RouteFinder func(r *http.Request) string

// MakeRouteFinder returns a RouteFinder matching requests against the
// routes of a chi router. Middlewares run before chi routes the request, so
// the pattern is resolved up front.
func MakeRouteFinder(routes chi.Routes) RouteFinder {
	return func(r *http.Request) string {
		rctx := chi.NewRouteContext()
		if !routes.Match(rctx, r.Method, r.URL.Path) {
			return ""
		}
		return rctx.RoutePattern()
	}
}

func routeLabel(find RouteFinder, r *http.Request) string {
	if route := find(r); route != "" {
		return route
	}
	return "unmatched"
}
