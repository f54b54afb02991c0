package api

import (
	"net/http"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/go-chi/chi/v5"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireRunName rejects run names that are not a single plain path
// element. It does not check the run exists: files of runs pruned from
// disk may still be served from S3.
func (s *server) requireRunName(jsonErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rundir.IsSafeName(chi.URLParam(r, "run")) {
				if jsonErrors {
					writeJSON(w, http.StatusBadRequest,
						errorResponse{"invalid run name"})
				} else {
					http.Error(w, "invalid run name", http.StatusBadRequest)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
