package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const TableName = "research_events"

// EventRow is one committed program event as stored in ClickHouse. Address and hash columns
// are hex strings; columns that do not apply to an event type are empty.
//
// Rows are deduplicated on StreamID, so replaying the stream is idempotent.
type EventRow struct {
	StreamID    string    `ch:"stream_id" json:"stream_id"`
	Position    uint64    `ch:"position" json:"position"`
	Event       string    `ch:"event" json:"event"`
	TxID        string    `ch:"tx_id" json:"tx_id"`
	Timestamp   time.Time `ch:"ts" json:"timestamp"`
	Request     string    `ch:"request" json:"request,omitempty"`
	Report      string    `ch:"report" json:"report,omitempty"`
	Actor       string    `ch:"actor" json:"actor"`
	Topic       string    `ch:"topic" json:"topic,omitempty"`
	Hash        string    `ch:"hash" json:"hash,omitempty"`
	SourceCount uint8     `ch:"source_count" json:"source_count"`
	IsValid     uint8     `ch:"is_valid" json:"is_valid"`
	Payload     string    `ch:"payload" json:"payload"`
	IndexedAt   time.Time `ch:"indexed_at" json:"indexed_at"`
}

// RequestSummary is the current state of a request folded from its events.
type RequestSummary struct {
	Request    string    `ch:"request" json:"request"`
	Requester  string    `ch:"requester" json:"requester"`
	Topic      string    `ch:"topic" json:"topic"`
	Researcher string    `ch:"researcher" json:"researcher,omitempty"`
	Report     string    `ch:"report_addr" json:"report,omitempty"`
	Status     string    `ch:"status_name" json:"status"`
	CreatedAt  time.Time `ch:"created_at" json:"created_at"`
	Position   uint64    `ch:"created_pos" json:"position"`
}

// StreamPosition maps a Redis stream id ("<ms>-<seq>") to a sortable integer. The sequence is
// capped at 16 bits, which keeps order for up to 65535 entries per millisecond.
func StreamPosition(id string) (uint64, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return 0, fmt.Errorf("invalid stream id %q", id)
	}
	ms, err := strconv.ParseUint(msPart, 10, 47)
	if err != nil {
		return 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	if seq > 0xffff {
		seq = 0xffff
	}
	return ms<<16 | seq, nil
}
