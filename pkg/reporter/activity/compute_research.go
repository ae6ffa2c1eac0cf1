package activity

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

type ComputeResearchStatsOutput struct {
	Version    uint64  `json:"version"`
	DurationMs float64 `json:"durationMs"`
}

// ComputeResearchStats rebuilds research_daily and report_verification_summary from the
// events table. Each run writes a newer version, so repeated runs replace earlier rows.
func (c *Context) ComputeResearchStats(ctx context.Context) (ComputeResearchStatsOutput, error) {
	start := time.Now()
	if c.EventsDB == "" || c.ReportsDB == nil {
		return ComputeResearchStatsOutput{}, temporal.NewNonRetryableApplicationError(
			"reporter is missing its databases", "config_error", nil)
	}

	version := uint64(c.now().UnixMilli())

	if err := c.ReportsDB.RebuildDaily(ctx, c.EventsDB, version); err != nil {
		return ComputeResearchStatsOutput{}, temporal.NewApplicationErrorWithCause(
			"unable to rebuild daily stats", "rebuild_daily_failed", err)
	}
	if err := c.ReportsDB.RebuildVerificationSummary(ctx, c.EventsDB, version); err != nil {
		return ComputeResearchStatsOutput{}, temporal.NewApplicationErrorWithCause(
			"unable to rebuild verification summary", "rebuild_verification_failed", err)
	}

	out := ComputeResearchStatsOutput{
		Version:    version,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	c.Logger.Info("Research stats computed",
		zap.String("events_db", c.EventsDB),
		zap.String("reports_db", c.ReportsDB.DatabaseName()),
		zap.Uint64("version", version),
		zap.Float64("duration_ms", out.DurationMs))
	return out, nil
}
