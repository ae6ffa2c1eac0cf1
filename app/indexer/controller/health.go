package controller

import (
	"net/http"
)

type HealthResponse struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Events string            `json:"events_db"`
	LastID string            `json:"last_stream_id,omitempty"`
	Counts map[string]uint64 `json:"indexed"`
}

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{Status: "ok", Events: c.App.EventsDB.DatabaseName(), Counts: c.App.Projector.Counts()}

	if err := c.App.EventsDB.Ping(ctx); err != nil {
		resp.Status, resp.Error = "errored", "clickhouse connection error"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if last, err := c.App.EventsDB.LastStreamID(ctx); err == nil {
		resp.LastID = last
	}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(ctx); err != nil {
			resp.Status, resp.Error = "errored", "redis connection error"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
