package db

import (
	"context"
	"fmt"
	"time"

	"github.com/research-protocol/researchx/pkg/db/clickhouse"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/research"
	"go.uber.org/zap"
)

// EventsDB holds the research_events projection fed by the indexer.
//
// It implements EventStore.
type EventsDB struct {
	clickhouse.Client
	Name string
}

// DatabaseName returns the events database name.
func (db *EventsDB) DatabaseName() string {
	return db.Name
}

// InitializeDB creates the events table. Rows are keyed by stream id so replays collapse on merge.
func (db *EventsDB) InitializeDB(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
			stream_id String,
			position UInt64,
			event LowCardinality(String),
			tx_id String,
			ts DateTime,
			request String,
			report String,
			actor String,
			topic String,
			hash String,
			source_count UInt8,
			is_valid UInt8,
			payload String CODEC(ZSTD(3)),
			indexed_at DateTime64(3)
		) ENGINE = %s(indexed_at)
		ORDER BY (stream_id)
	`, db.Name, events.TableName, db.OnCluster(), clickhouse.ReplacingMergeTree)

	return db.Exec(ctx, query)
}

// InsertEvents persists a page of event rows in one batch.
func (db *EventsDB) InsertEvents(ctx context.Context, rows []*events.EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."%s"`, db.Name, events.TableName)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	// Ensure the batch is closed, especially if not all data is sent immediately
	defer func() { _ = batch.Close() }()

	for _, row := range rows {
		if err := batch.AppendStruct(row); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append event %s: %w", row.StreamID, err)
		}
	}
	return batch.Send()
}

// LastStreamID returns the newest indexed stream id, or "" for an empty table.
func (db *EventsDB) LastStreamID(ctx context.Context) (string, error) {
	var id string
	query := fmt.Sprintf(`SELECT stream_id FROM "%s"."%s" ORDER BY position DESC LIMIT 1`, db.Name, events.TableName)
	if err := db.QueryRow(ctx, query).Scan(&id); err != nil {
		if clickhouse.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// QueryRequests folds events per request and returns summaries newest first. cursor is an
// exclusive upper bound on the creation position; zero means start from the newest. An empty
// status returns every request.
func (db *EventsDB) QueryRequests(ctx context.Context, status string, cursor uint64, limit int) ([]events.RequestSummary, error) {
	if status != "" {
		if _, err := research.ParseStatus(status); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
		SELECT
			request,
			anyIf(actor, event = '%[3]s') AS requester,
			anyIf(topic, event = '%[3]s') AS topic,
			anyIf(actor, event = '%[4]s') AS researcher,
			anyIf(report, event = '%[5]s') AS report_addr,
			multiIf(
				countIf(event = '%[5]s') > 0, 'completed',
				countIf(event = '%[4]s') > 0, 'in_progress',
				'open'
			) AS status_name,
			minIf(ts, event = '%[3]s') AS created_at,
			minIf(position, event = '%[3]s') AS created_pos
		FROM "%[1]s"."%[2]s" FINAL
		WHERE request != ''
		GROUP BY request
		HAVING countIf(event = '%[3]s') > 0
			AND (? = '' OR status_name = ?)
			AND (? = 0 OR created_pos < ?)
		ORDER BY created_pos DESC
		LIMIT ?
	`, db.Name, events.TableName,
		research.EventRequestCreated, research.EventMethodologyCommitted, research.EventReportSubmitted)

	var out []events.RequestSummary
	if err := db.SelectWithFinal(ctx, &out, query, status, status, cursor, cursor, limit); err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	return out, nil
}

// RequestTimeline returns every event touching a request in stream order. Verifications carry
// only the report, so they are matched through the request's submitted reports.
func (db *EventsDB) RequestTimeline(ctx context.Context, request string) ([]events.EventRow, error) {
	query := fmt.Sprintf(`
		SELECT *
		FROM "%[1]s"."%[2]s" FINAL
		WHERE request = ?
			OR (event = '%[3]s' AND report IN (
				SELECT report FROM "%[1]s"."%[2]s" FINAL
				WHERE event = '%[4]s' AND request = ?
			))
		ORDER BY position ASC
	`, db.Name, events.TableName, research.EventReportVerified, research.EventReportSubmitted)

	var out []events.EventRow
	if err := db.SelectWithFinal(ctx, &out, query, request, request); err != nil {
		return nil, fmt.Errorf("request timeline: %w", err)
	}
	return out, nil
}

// ReportVerifications returns the verification events for a report in stream order.
func (db *EventsDB) ReportVerifications(ctx context.Context, report string) ([]events.EventRow, error) {
	query := fmt.Sprintf(`
		SELECT *
		FROM "%s"."%s" FINAL
		WHERE event = ? AND report = ?
		ORDER BY position ASC
	`, db.Name, events.TableName)

	var out []events.EventRow
	if err := db.SelectWithFinal(ctx, &out, query, research.EventReportVerified, report); err != nil {
		return nil, fmt.Errorf("report verifications: %w", err)
	}
	return out, nil
}

// Optimize forces a merge of the events table so duplicate stream ids collapse.
func (db *EventsDB) Optimize(ctx context.Context) error {
	start := time.Now()
	if err := db.OptimizeTable(ctx, db.Name, events.TableName, true); err != nil {
		return err
	}
	db.Logger.Debug("Events table optimized", zap.Duration("took", time.Since(start)))
	return nil
}
