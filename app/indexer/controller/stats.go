package controller

import (
	"net/http"
	"strconv"

	"github.com/research-protocol/researchx/pkg/db/models/reports"
	"go.uber.org/zap"
)

const defaultStatsDays = 30

// HandleDailyStats returns the daily activity buckets computed by the reporter.
func (c *Controller) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if c.App.ReportsDB == nil {
		writeError(w, http.StatusServiceUnavailable, "reports database not configured")
		return
	}

	days := defaultStatsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = min(n, 366)
	}

	rows, err := c.App.ReportsDB.GetDaily(r.Context(), days)
	if err != nil {
		c.App.Logger.Error("Daily stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []reports.ResearchDaily{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}
