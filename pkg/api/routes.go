package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
// Every route lives under the configured application root.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if root := s.cfg.Server.ApplicationRoot; root != "" {
		r.Route(root, s.mountRoutes)
	} else {
		s.mountRoutes(r)
	}

	return r
}

func (s *server) mountRoutes(r chi.Router) {
	r.Get("/", s.handleRunList)
	r.Get("/hello", s.handleHello)
	r.Get("/environ", s.handleEnviron)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit.API))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/environ", s.handleEnviron)
		r.Get("/runs", s.handleAPIRuns)

		r.Route("/runs/{run}", func(r chi.Router) {
			r.Use(s.requireRunName(true))

			r.Get("/summary", s.handleAPIRunSummary)
			r.Get("/read-counts", s.handleAPIReadCounts)
			r.Get("/spikes", s.handleAPISpikes)
			r.Get("/tree", s.handleAPIRunTree)
		})
	})

	r.Route("/{run}", func(r chi.Router) {
		r.Use(s.requireRunName(false))

		r.Get("/", s.handleRunDetails)

		// Report files, FastQC pages and anything else in the run.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit.Files))
			}

			r.Get("/fastqc", s.handleFastQCList)
			r.Get("/fastqc/", s.handleFastQCList)
			r.Get("/*", s.handleRunFile)
			r.Head("/*", s.handleRunFile)
		})
	})
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Datasets"},
		MaxAge:         300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
