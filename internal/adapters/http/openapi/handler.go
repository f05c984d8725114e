// Package openapi serves the OpenAPI document of the HTTP API.
package openapi

import (
	_ "embed"
	"net/http"

	"github.com/gorilla/mux"
)

// Document contains the embedded OpenAPI YAML document.
//
//go:embed openapi.yaml
var Document []byte

// Register attaches GET /openapi.yaml to r.
func Register(r *mux.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(Document)
	}).Methods(http.MethodGet)
}
