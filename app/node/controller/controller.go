package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/research-protocol/researchx/app/node/types"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/api/program", c.HandleProgram).Methods(http.MethodGet)
	r.HandleFunc("/api/tx", c.HandleTx).Methods(http.MethodPost)

	r.HandleFunc("/api/requests/{address}", c.HandleRequest).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{address}", c.HandleReport).Methods(http.MethodGet)
	r.HandleFunc("/api/verifications/{address}", c.HandleVerification).Methods(http.MethodGet)

	r.HandleFunc("/api/derive/request", c.HandleDeriveRequest).Methods(http.MethodGet)
	r.HandleFunc("/api/derive/report", c.HandleDeriveReport).Methods(http.MethodGet)
	r.HandleFunc("/api/derive/verification", c.HandleDeriveVerification).Methods(http.MethodGet)

	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
