package routers

import (
	"dag-stitch/handlers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up all the HTTP routes for the status API
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Current window size, orphan rate, block rate and cooldown
	r.HandleFunc("/status", h.GetStatus).Methods("GET")

	// Journal of dispatched stitches and their healing outcome
	r.HandleFunc("/stitches", h.ListStitches).Methods("GET")
	r.HandleFunc("/stitches/{id}", h.GetStitch).Methods("GET")

	// Prometheus exposition
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
