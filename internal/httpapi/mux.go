// Package httpapi serves the station's health probe and Prometheus metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewMux(sink ConnectionChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, sink)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
