package controller

import (
	"errors"
	"net/http"

	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every failed API call.
type ErrorBody struct {
	Error research.Error `json:"error"`
}

// errorStatus maps an error to its HTTP status and wire description.
func errorStatus(err error) (int, research.Error) {
	if desc, ok := research.Describe(err); ok {
		switch {
		case errors.Is(err, research.ErrAccountNotFound):
			return http.StatusNotFound, *desc
		case errors.Is(err, research.ErrAccountInUse), errors.Is(err, research.ErrArithmeticOverflow):
			return http.StatusConflict, *desc
		default:
			return http.StatusBadRequest, *desc
		}
	}

	switch {
	case errors.Is(err, txn.ErrReplayed):
		return http.StatusConflict, research.Error{Name: "Replayed", Msg: err.Error()}
	case errors.Is(err, txn.ErrInvalidEnvelope):
		return http.StatusUnauthorized, research.Error{Name: "InvalidEnvelope", Msg: err.Error()}
	case errors.Is(err, txn.ErrInvalidArgs):
		return http.StatusBadRequest, research.Error{Name: "InvalidArgs", Msg: err.Error()}
	case errors.Is(err, txn.ErrUnknownInstruction):
		return http.StatusBadRequest, research.Error{Name: "UnknownInstruction", Msg: err.Error()}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, research.Error{Name: "BadRequest", Msg: err.Error()}
	}
	return http.StatusInternalServerError, research.Error{Name: "Internal", Msg: "internal error"}
}

var errBadRequest = errors.New("bad request")

func (c *Controller) writeError(w http.ResponseWriter, err error) {
	status, desc := errorStatus(err)
	if status == http.StatusInternalServerError {
		c.App.Logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorBody{Error: desc})
}
