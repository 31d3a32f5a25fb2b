package api

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// WithCORS lets browser front-ends on the listed origins call h. An empty
// list returns h unchanged; "*" allows any origin.
func WithCORS(h http.Handler, origins string) http.Handler {
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(h)
}
