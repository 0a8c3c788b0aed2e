package api

import (
	"net/http"
)

// Mux mounts the API under /api/ behind mw, the Prometheus handler at
// /metrics and the event stream at /ws/events. A nil mw, metrics or stream
// leaves that part unmounted or unprotected.
func Mux(api http.Handler, mw func(http.Handler) http.Handler, metrics, stream http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if mw != nil {
		api = mw(api)
	}
	mux.Handle("/api/", api)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if stream != nil {
		mux.Handle("/ws/events", stream)
	}
	return mux
}
