package controller

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HandleResync replays the events stream from the beginning. Only one resync runs at a time.
func (c *Controller) HandleResync(w http.ResponseWriter, r *http.Request) {
	if !c.resyncing.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "resync already running")
		return
	}
	defer c.resyncing.Store(false)

	start := time.Now()
	rows, err := c.App.Resync(r.Context())
	if err != nil {
		c.App.Logger.Error("Resync failed", zap.Int("rows", rows), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resync failed")
		return
	}

	c.App.Logger.Info("Resync requested",
		zap.String("user", c.currentUser(r)),
		zap.Int("rows", rows),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "took_ms": time.Since(start).Milliseconds()})
}
