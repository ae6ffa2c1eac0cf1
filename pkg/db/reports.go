package db

import (
	"context"
	"fmt"

	"github.com/research-protocol/researchx/pkg/db/clickhouse"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/models/reports"
	"github.com/research-protocol/researchx/pkg/research"
)

// ReportsDB represents a database connection for storing aggregated research reports.
// It includes a database client, a logger for capturing logs, and the database name.
type ReportsDB struct {
	clickhouse.Client
	Name string
}

// DatabaseName returns the reports database name.
func (db *ReportsDB) DatabaseName() string {
	return db.Name
}

// InitializeDB creates the reports tables using raw SQL.
func (db *ReportsDB) InitializeDB(ctx context.Context) error {
	// 1) research_daily
	query1 := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
			day Date,
			requests_created UInt64,
			methodologies_committed UInt64,
			reports_submitted UInt64,
			verifications UInt64,
			valid_verifications UInt64,
			version UInt64
		) ENGINE = %s(version)
		ORDER BY (day)
	`, db.Name, reports.DailyTableName, db.OnCluster(), clickhouse.ReplacingMergeTree)
	if err := db.Exec(ctx, query1); err != nil {
		return err
	}

	// 2) report_verification_summary
	query2 := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
			report String,
			verifications UInt64,
			valid UInt64,
			invalid UInt64,
			first_verified_at DateTime,
			last_verified_at DateTime,
			version UInt64
		) ENGINE = %s(version)
		ORDER BY (report)
	`, db.Name, reports.VerificationSummaryTableName, db.OnCluster(), clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query2)
}

// RebuildDaily recomputes every daily bucket from the events table. Rows written with a higher
// version replace older ones on merge.
func (db *ReportsDB) RebuildDaily(ctx context.Context, eventsDB string, version uint64) error {
	query := fmt.Sprintf(`
		INSERT INTO "%[1]s"."%[2]s"
		SELECT
			toDate(ts) AS day,
			countIf(event = '%[5]s') AS requests_created,
			countIf(event = '%[6]s') AS methodologies_committed,
			countIf(event = '%[7]s') AS reports_submitted,
			countIf(event = '%[8]s') AS verifications,
			countIf(event = '%[8]s' AND is_valid = 1) AS valid_verifications,
			? AS version
		FROM "%[3]s"."%[4]s" FINAL
		GROUP BY day
	`, db.Name, reports.DailyTableName, eventsDB, events.TableName,
		research.EventRequestCreated, research.EventMethodologyCommitted,
		research.EventReportSubmitted, research.EventReportVerified)

	if err := db.Exec(ctx, query, version); err != nil {
		return fmt.Errorf("rebuild %s: %w", reports.DailyTableName, err)
	}
	return nil
}

// RebuildVerificationSummary recomputes per-report verification tallies from the events table.
func (db *ReportsDB) RebuildVerificationSummary(ctx context.Context, eventsDB string, version uint64) error {
	query := fmt.Sprintf(`
		INSERT INTO "%[1]s"."%[2]s"
		SELECT
			report,
			count() AS verifications,
			countIf(is_valid = 1) AS valid,
			countIf(is_valid = 0) AS invalid,
			min(ts) AS first_verified_at,
			max(ts) AS last_verified_at,
			? AS version
		FROM "%[3]s"."%[4]s" FINAL
		WHERE event = '%[5]s'
		GROUP BY report
	`, db.Name, reports.VerificationSummaryTableName, eventsDB, events.TableName, research.EventReportVerified)

	if err := db.Exec(ctx, query, version); err != nil {
		return fmt.Errorf("rebuild %s: %w", reports.VerificationSummaryTableName, err)
	}
	return nil
}

// GetDaily returns the last N daily buckets, newest first.
func (db *ReportsDB) GetDaily(ctx context.Context, limit int) ([]reports.ResearchDaily, error) {
	query := fmt.Sprintf(`
		SELECT *
		FROM "%s"."%s" FINAL
		ORDER BY day DESC
		LIMIT ?
	`, db.Name, reports.DailyTableName)

	var out []reports.ResearchDaily
	if err := db.SelectWithFinal(ctx, &out, query, limit); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVerificationSummary returns the tallies for one report, or nil when it has none.
func (db *ReportsDB) GetVerificationSummary(ctx context.Context, report string) (*reports.VerificationSummary, error) {
	query := fmt.Sprintf(`
		SELECT *
		FROM "%s"."%s" FINAL
		WHERE report = ?
	`, db.Name, reports.VerificationSummaryTableName)

	var out []reports.VerificationSummary
	if err := db.SelectWithFinal(ctx, &out, query, report); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
