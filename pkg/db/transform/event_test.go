package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, env research.Envelope) []byte {
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestEvent_Projection(t *testing.T) {
	indexed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	request, report, actor := research.Pubkey{1}, research.Pubkey{2}, research.Pubkey{3}

	data := encode(t, research.Envelope{
		Event:     research.EventReportSubmitted,
		TxID:      "tx-1",
		Timestamp: 1_700_000_000,
		Payload: research.ReportSubmitted{
			Request: request, Report: report, Researcher: actor,
			ReportHash: research.Hash{0xBB}, SourceCount: 3,
		},
	})
	row, err := Event("1700000000000-4", data, indexed)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-4", row.StreamID)
	assert.Equal(t, uint64(1700000000000<<16|4), row.Position)
	assert.Equal(t, research.EventReportSubmitted, row.Event)
	assert.Equal(t, "tx-1", row.TxID)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), row.Timestamp)
	assert.Equal(t, request.String(), row.Request)
	assert.Equal(t, report.String(), row.Report)
	assert.Equal(t, actor.String(), row.Actor)
	assert.Equal(t, research.Hash{0xBB}.String(), row.Hash)
	assert.Equal(t, uint8(3), row.SourceCount)
	assert.Equal(t, string(data), row.Payload)
	assert.Equal(t, indexed, row.IndexedAt)

	row, err = Event("1-0", encode(t, research.Envelope{
		Event:   research.EventReportVerified,
		Payload: research.ReportVerified{Report: report, Verifier: actor, IsValid: true},
	}), indexed)
	require.NoError(t, err)
	assert.Empty(t, row.Request)
	assert.Equal(t, uint8(1), row.IsValid)

	row, err = Event("2-0", encode(t, research.Envelope{
		Event:   research.EventRequestCreated,
		Payload: research.RequestCreated{Request: request, Requester: actor, Topic: "AI"},
	}), indexed)
	require.NoError(t, err)
	assert.Equal(t, "AI", row.Topic)
}

func TestEvent_Rejects(t *testing.T) {
	_, err := Event("1-0", []byte(`{"event":"nope","payload":{}}`), time.Now())
	assert.Error(t, err)

	_, err = Event("bad", encode(t, research.Envelope{
		Event:   research.EventRequestCreated,
		Payload: research.RequestCreated{},
	}), time.Now())
	assert.Error(t, err)
}
