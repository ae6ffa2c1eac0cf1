package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
)

// APIError is a node response that maps to no program, substrate or envelope error.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node returned %d %s: %s", e.Status, e.Name, e.Message)
}

var envelopeErrors = map[string]error{
	"InvalidEnvelope":    txn.ErrInvalidEnvelope,
	"Replayed":           txn.ErrReplayed,
	"UnknownInstruction": txn.ErrUnknownInstruction,
	"InvalidArgs":        txn.ErrInvalidArgs,
}

func decodeAPIError(status int, body []byte) error {
	var payload struct {
		Error research.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Name == "" {
		return &APIError{Status: status, Name: http.StatusText(status), Message: string(body)}
	}
	e := payload.Error

	if e.Code != 0 {
		return research.FromWire(e)
	}
	if sentinel, ok := envelopeErrors[e.Name]; ok {
		return fmt.Errorf("%w: %s", sentinel, e.Msg)
	}
	var generic *research.Error
	if rebuilt := research.FromWire(e); !errors.As(rebuilt, &generic) {
		return rebuilt
	}
	return &APIError{Status: status, Name: e.Name, Message: e.Msg}
}
