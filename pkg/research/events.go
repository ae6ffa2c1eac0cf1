package research

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event names, also the Pub/Sub channel suffixes.
const (
	EventRequestCreated       = "request.created"
	EventMethodologyCommitted = "methodology.committed"
	EventReportSubmitted      = "report.submitted"
	EventReportVerified       = "report.verified"
)

// Event is a notification emitted after a successful transition.
type Event interface {
	EventName() string
}

type RequestCreated struct {
	Request   Pubkey `json:"request"`
	Requester Pubkey `json:"requester"`
	Topic     string `json:"topic"`
}

type MethodologyCommitted struct {
	Request         Pubkey `json:"request"`
	Researcher      Pubkey `json:"researcher"`
	MethodologyHash Hash   `json:"methodology_hash"`
}

type ReportSubmitted struct {
	Request     Pubkey `json:"request"`
	Report      Pubkey `json:"report"`
	Researcher  Pubkey `json:"researcher"`
	ReportHash  Hash   `json:"report_hash"`
	SourceCount uint8  `json:"source_count"`
}

type ReportVerified struct {
	Report   Pubkey `json:"report"`
	Verifier Pubkey `json:"verifier"`
	IsValid  bool   `json:"is_valid"`
}

func (RequestCreated) EventName() string       { return EventRequestCreated }
func (MethodologyCommitted) EventName() string { return EventMethodologyCommitted }
func (ReportSubmitted) EventName() string      { return EventReportSubmitted }
func (ReportVerified) EventName() string       { return EventReportVerified }

// Envelope wraps an event with the transaction that produced it.
type Envelope struct {
	Event     string `json:"event"`
	TxID      string `json:"tx_id"`
	Timestamp int64  `json:"timestamp"`
	Payload   Event  `json:"payload"`
}

// UnmarshalJSON resolves Payload to the concrete type named by Event.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event     string          `json:"event"`
		TxID      string          `json:"tx_id"`
		Timestamp int64           `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var payload Event
	switch raw.Event {
	case EventRequestCreated:
		p := RequestCreated{}
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		payload = p
	case EventMethodologyCommitted:
		p := MethodologyCommitted{}
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		payload = p
	case EventReportSubmitted:
		p := ReportSubmitted{}
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		payload = p
	case EventReportVerified:
		p := ReportVerified{}
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		payload = p
	default:
		return fmt.Errorf("unknown event %q", raw.Event)
	}
	e.Event = raw.Event
	e.TxID = raw.TxID
	e.Timestamp = raw.Timestamp
	e.Payload = payload
	return nil
}

// Emitter receives envelopes of committed transactions. Delivery is best effort; the program
// never rolls back because an emitter failed.
type Emitter interface {
	Emit(ctx context.Context, env Envelope) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, env Envelope) error

func (f EmitterFunc) Emit(ctx context.Context, env Envelope) error { return f(ctx, env) }

// NopEmitter drops every envelope.
var NopEmitter Emitter = EmitterFunc(func(context.Context, Envelope) error { return nil })

type txIDKey struct{}

// WithTxID attaches the transaction id carried into emitted envelopes.
func WithTxID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, txIDKey{}, id)
}

// TxIDFrom returns the transaction id attached by WithTxID.
func TxIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(txIDKey{}).(string)
	return id
}
