package workflow

import "github.com/research-protocol/researchx/pkg/reporter/activity"

type Context struct {
	ActivityContext *activity.Context
	// TaskQueue is where the stats activity runs.
	TaskQueue string
}
