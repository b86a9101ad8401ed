package catalog

import (
	"encoding/json"
	"net/http"
)

// Handler serves the catalog read-only:
//
//	GET /api/experiences       list
//	GET /api/experiences/{id}  one experience, 404 when unknown
func Handler(c *Catalog) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/experiences", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"experiences": c.List(),
		})
	})
	mux.HandleFunc("GET /api/experiences/{id}", func(w http.ResponseWriter, r *http.Request) {
		exp, ok := c.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "Experience not found",
				"kind":  "not_found",
			})
			return
		}
		writeJSON(w, http.StatusOK, exp)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
