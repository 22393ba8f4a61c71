package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/middleware"
	"tonight-api/internal/wire"
)

type route struct {
	name   string
	path   string
	prefix bool
	handle middleware.Handler
}

// Router matches on the path only; the query string never takes part.
type Router struct {
	routes   []route
	notFound route
}

func newRouter(h *Handler, gate func(middleware.Handler) middleware.Handler) *Router {
	return &Router{
		routes: []route{
			{name: "events", path: "/api/events", handle: h.ListEvents},
			{name: "event", path: "/api/event/", prefix: true, handle: h.GetEvent},
			{name: "my_events", path: "/api/my-events", handle: gate(h.MyEvents)},
			{name: "register", path: "/api/auth/register", handle: gate(h.Register)},
			{name: "me", path: "/api/auth/me", handle: gate(h.Me)},
			{name: "add_event", path: "/api/add-event", handle: gate(h.AddEvent)},
			{name: "delete_event", path: "/api/delete-event", handle: gate(h.DeleteEvent)},
		},
		// unknown paths still demand credentials before saying so
		notFound: route{name: "not_found", handle: gate(endpointNotFound)},
	}
}

func (rt *Router) match(path string) route {
	for _, r := range rt.routes {
		if r.prefix && strings.HasPrefix(path, r.path) || !r.prefix && path == r.path {
			return r
		}
	}
	return rt.notFound
}

func endpointNotFound(context.Context, *wire.Request) (any, error) {
	return nil, status.Error(codes.Unimplemented, msgEndpointNotFound)
}
