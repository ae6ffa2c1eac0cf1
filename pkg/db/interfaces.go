package db

import (
	"context"

	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/models/reports"
)

// EventStore exposes the events projection used by the indexer.
type EventStore interface {
	DatabaseName() string
	InsertEvents(ctx context.Context, rows []*events.EventRow) error
	LastStreamID(ctx context.Context) (string, error)
	QueryRequests(ctx context.Context, status string, cursor uint64, limit int) ([]events.RequestSummary, error)
	RequestTimeline(ctx context.Context, request string) ([]events.EventRow, error)
	ReportVerifications(ctx context.Context, report string) ([]events.EventRow, error)
	Optimize(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ReportsStore exposes the reports database helpers referenced by reporter activities.
type ReportsStore interface {
	DatabaseName() string
	RebuildDaily(ctx context.Context, eventsDB string, version uint64) error
	RebuildVerificationSummary(ctx context.Context, eventsDB string, version uint64) error
	GetDaily(ctx context.Context, limit int) ([]reports.ResearchDaily, error)
	GetVerificationSummary(ctx context.Context, report string) (*reports.VerificationSummary, error)
	Close() error
}

var (
	_ EventStore   = (*EventsDB)(nil)
	_ ReportsStore = (*ReportsDB)(nil)
)
