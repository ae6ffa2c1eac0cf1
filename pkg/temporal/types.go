package temporal

import (
	"time"

	"go.temporal.io/sdk/client"
)

const (
	DefaultNamespace = "research"
	DefaultRetention = 72 * time.Hour
)

// Queue names
const (
	QueueReports = "reports"
)

// Schedule IDs
const (
	ScheduleResearchReports = "reports:research"
)

// Workflow and activity names, registered explicitly so schedules can start them by name.
const (
	ComputeResearchStatsWorkflowName = "ComputeResearchStatsWorkflow"
	ComputeResearchStatsActivityName = "ComputeResearchStats"
)

// OneHourSpec returns a schedule spec for one hour.
func OneHourSpec() client.ScheduleSpec {
	return GetScheduleSpec(time.Hour)
}

// GetScheduleSpec returns a schedule spec for the given interval.
func GetScheduleSpec(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}
