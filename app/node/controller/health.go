package controller

import (
	"errors"
	"net/http"

	"github.com/research-protocol/researchx/pkg/research"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// a read of the zero address must reach the backend and come back empty
	if _, err := c.App.Store.Get(ctx, research.Pubkey{}); err != nil && !errors.Is(err, research.ErrAccountNotFound) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "ledger store error"})
		return
	}

	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(ctx); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "redis connection error"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
