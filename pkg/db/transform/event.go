package transform

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/utils"
)

// Event maps one research:events stream entry into the single-table EventRow model.
// Typed columns carry the fields queries filter on; the full envelope stays in Payload.
func Event(streamID string, data []byte, indexedAt time.Time) (*events.EventRow, error) {
	var env research.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope %s: %w", streamID, err)
	}
	pos, err := events.StreamPosition(streamID)
	if err != nil {
		return nil, err
	}

	row := &events.EventRow{
		StreamID:  streamID,
		Position:  pos,
		Event:     env.Event,
		TxID:      env.TxID,
		Timestamp: time.Unix(env.Timestamp, 0).UTC(),
		Payload:   string(data),
		IndexedAt: indexedAt.UTC(),
	}

	switch p := env.Payload.(type) {
	case research.RequestCreated:
		row.Request = p.Request.String()
		row.Actor = p.Requester.String()
		row.Topic = p.Topic
	case research.MethodologyCommitted:
		row.Request = p.Request.String()
		row.Actor = p.Researcher.String()
		row.Hash = p.MethodologyHash.String()
	case research.ReportSubmitted:
		row.Request = p.Request.String()
		row.Report = p.Report.String()
		row.Actor = p.Researcher.String()
		row.Hash = p.ReportHash.String()
		row.SourceCount = p.SourceCount
	case research.ReportVerified:
		row.Report = p.Report.String()
		row.Actor = p.Verifier.String()
		row.IsValid = utils.BoolToUInt8(p.IsValid)
	default:
		return nil, fmt.Errorf("unsupported event %q", env.Event)
	}
	return row, nil
}
