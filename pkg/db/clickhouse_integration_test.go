//go:build integration

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/transform"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var clickhouseReady bool

// TestMain starts one ClickHouse container for the package. Without Docker the
// ClickHouse tests skip.
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.1",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		logger.Warn("ClickHouse container unavailable, skipping", zap.Error(err))
		os.Exit(m.Run())
	}

	host, err := container.ConnectionHost(ctx)
	if err != nil {
		logger.Fatal("Failed to get connection host", zap.Error(err))
	}
	_ = os.Setenv("CLICKHOUSE_ADDR", fmt.Sprintf("clickhouse://%s?sslmode=disable", host))
	_ = os.Setenv("INDEXER_DB", "it_research_indexer")
	_ = os.Setenv("REPORTS_DB", "it_research_reports")
	clickhouseReady = true

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		logger.Error("Failed to terminate ClickHouse container", zap.Error(err))
	}
	os.Exit(code)
}

func requireClickHouse(t *testing.T) {
	t.Helper()
	if !clickhouseReady {
		t.Skip("ClickHouse container not running")
	}
}

func row(t *testing.T, id string, env research.Envelope) *events.EventRow {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	r, err := transform.Event(id, data, time.Now())
	require.NoError(t, err)
	return r
}

func TestEventsAndReports(t *testing.T) {
	requireClickHouse(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	eventsDB, err := NewEventsDB(ctx, logger, "indexer")
	require.NoError(t, err)
	defer eventsDB.Close()
	reportsDB, err := NewReportsDB(ctx, logger, "reporter")
	require.NoError(t, err)
	defer reportsDB.Close()

	reqA, reqB := research.Pubkey{0xA}, research.Pubkey{0xB}
	rep := research.Pubkey{0xC}
	requester, researcher, verifier := research.Pubkey{1}, research.Pubkey{2}, research.Pubkey{3}
	ts := int64(1_700_000_000)

	rows := []*events.EventRow{
		row(t, "1700000000000-0", research.Envelope{Event: research.EventRequestCreated, TxID: "t1", Timestamp: ts,
			Payload: research.RequestCreated{Request: reqA, Requester: requester, Topic: "AI"}}),
		row(t, "1700000000001-0", research.Envelope{Event: research.EventRequestCreated, TxID: "t2", Timestamp: ts,
			Payload: research.RequestCreated{Request: reqB, Requester: requester, Topic: "Bio"}}),
		row(t, "1700000000002-0", research.Envelope{Event: research.EventMethodologyCommitted, TxID: "t3", Timestamp: ts + 1,
			Payload: research.MethodologyCommitted{Request: reqA, Researcher: researcher, MethodologyHash: research.Hash{9}}}),
		row(t, "1700000000003-0", research.Envelope{Event: research.EventReportSubmitted, TxID: "t4", Timestamp: ts + 2,
			Payload: research.ReportSubmitted{Request: reqA, Report: rep, Researcher: researcher, ReportHash: research.Hash{8}, SourceCount: 2}}),
		row(t, "1700000000004-0", research.Envelope{Event: research.EventReportVerified, TxID: "t5", Timestamp: ts + 3,
			Payload: research.ReportVerified{Report: rep, Verifier: verifier, IsValid: true}}),
	}
	require.NoError(t, eventsDB.InsertEvents(ctx, rows))
	// replayed entries collapse on stream id
	require.NoError(t, eventsDB.InsertEvents(ctx, rows[:2]))
	require.NoError(t, eventsDB.Optimize(ctx))

	last, err := eventsDB.LastStreamID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1700000000004-0", last)

	all, err := eventsDB.QueryRequests(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, reqB.String(), all[0].Request, "newest first")
	assert.Equal(t, "open", all[0].Status)
	assert.Equal(t, "completed", all[1].Status)
	assert.Equal(t, rep.String(), all[1].Report)
	assert.Equal(t, researcher.String(), all[1].Researcher)

	open, err := eventsDB.QueryRequests(ctx, "open", 0, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	page, err := eventsDB.QueryRequests(ctx, "", all[0].Position, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, reqA.String(), page[0].Request)

	timeline, err := eventsDB.RequestTimeline(ctx, reqA.String())
	require.NoError(t, err)
	require.Len(t, timeline, 4)
	assert.Equal(t, research.EventReportVerified, timeline[3].Event)

	verifications, err := eventsDB.ReportVerifications(ctx, rep.String())
	require.NoError(t, err)
	require.Len(t, verifications, 1)
	assert.Equal(t, uint8(1), verifications[0].IsValid)

	require.NoError(t, reportsDB.RebuildDaily(ctx, eventsDB.Name, 1))
	require.NoError(t, reportsDB.RebuildVerificationSummary(ctx, eventsDB.Name, 1))

	daily, err := reportsDB.GetDaily(ctx, 7)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, uint64(2), daily[0].RequestsCreated)
	assert.Equal(t, uint64(1), daily[0].ValidVerifications)

	summary, err := reportsDB.GetVerificationSummary(ctx, rep.String())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, uint64(1), summary.Valid)
	assert.Zero(t, summary.Invalid)

	missing, err := reportsDB.GetVerificationSummary(ctx, research.Pubkey{0xFF}.String())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
