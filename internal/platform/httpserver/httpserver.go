package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults. Validation requests can carry
// large geometry payloads, so write timeouts stay generous while header reads
// stay tight.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
