package gateway

import (
	"net/http"

	"github.com/remote-device-control/backend/internal/logger"
)

// Websocket endpoint paths.
const (
	CommPath   = "/ws/comm"
	AdminPath  = "/ws/admin"
	NotifyPath = "/ws/notifications"
)

// Router demultiplexes websocket endpoints by request path. Requests for
// unknown paths are terminated at the TCP level before any websocket
// handshake happens.
type Router struct {
	comm   http.Handler
	admin  http.Handler
	notify http.Handler
}

func NewRouter(comm, admin, notify http.Handler) *Router {
	return &Router{comm: comm, admin: admin, notify: notify}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case CommPath:
		rt.comm.ServeHTTP(w, r)
	case AdminPath:
		rt.admin.ServeHTTP(w, r)
	case NotifyPath:
		rt.notify.ServeHTTP(w, r)
	default:
		logger.Warnf("rejecting unknown ws path=%s remote=%s", r.URL.Path, r.RemoteAddr)
		rt.reject(w)
	}
}

// reject closes the underlying connection without writing a response, so no
// websocket handshake ever completes on an unknown path.
func (rt *Router) reject(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn.Close()
}
