package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/models/reports"
	"github.com/research-protocol/researchx/pkg/research"
	"go.uber.org/zap"
)

type TimelineResponse struct {
	Request string            `json:"request"`
	Data    []events.EventRow `json:"data"`
}

type VerificationsResponse struct {
	Report  string                       `json:"report"`
	Summary *reports.VerificationSummary `json:"summary"`
	Data    []events.EventRow            `json:"data"`
}

// HandleRequests lists indexed requests newest first, optionally filtered by status.
func (c *Controller) HandleRequests(w http.ResponseWriter, r *http.Request) {
	spec, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" {
		if _, err := research.ParseStatus(status); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidStatus.Error())
			return
		}
	}

	rows, err := c.App.EventsDB.QueryRequests(r.Context(), status, spec.Cursor, spec.Limit+1)
	if err != nil {
		c.App.Logger.Error("Query requests failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var next *uint64
	if len(rows) > spec.Limit {
		cursor := rows[spec.Limit-1].Position
		next = &cursor
		rows = rows[:spec.Limit]
	}
	if rows == nil {
		rows = []events.RequestSummary{}
	}

	writeJSON(w, http.StatusOK, pagedResponse[events.RequestSummary]{
		Data:       rows,
		Limit:      spec.Limit,
		NextCursor: next,
	})
}

// HandleRequestTimeline returns every indexed event of one request in stream order.
func (c *Controller) HandleRequestTimeline(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	rows, err := c.App.EventsDB.RequestTimeline(r.Context(), addr)
	if err != nil {
		c.App.Logger.Error("Request timeline failed", zap.String("request", addr), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "request not indexed")
		return
	}

	writeJSON(w, http.StatusOK, TimelineResponse{Request: addr, Data: rows})
}

// HandleReportVerifications returns the verifications of a report with the latest computed summary.
func (c *Controller) HandleReportVerifications(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	rows, err := c.App.EventsDB.ReportVerifications(r.Context(), addr)
	if err != nil {
		c.App.Logger.Error("Report verifications failed", zap.String("report", addr), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []events.EventRow{}
	}

	resp := VerificationsResponse{Report: addr, Data: rows}
	if c.App.ReportsDB != nil {
		summary, err := c.App.ReportsDB.GetVerificationSummary(r.Context(), addr)
		if err != nil {
			// summaries are rebuilt hourly; serve the raw rows without one
			c.App.Logger.Warn("Verification summary unavailable", zap.String("report", addr), zap.Error(err))
		}
		resp.Summary = summary
	}

	writeJSON(w, http.StatusOK, resp)
}

func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pk, err := research.ParsePubkey(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return "", false
	}
	return pk.String(), true
}
