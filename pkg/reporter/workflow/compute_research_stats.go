package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/research-protocol/researchx/pkg/reporter/activity"
	rtemporal "github.com/research-protocol/researchx/pkg/temporal"
)

func (c *Context) ComputeResearchStatsWorkflow(ctx workflow.Context) (activity.ComputeResearchStatsOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{"config_error"},
		},
		TaskQueue: c.TaskQueue,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out activity.ComputeResearchStatsOutput
	err := workflow.ExecuteActivity(ctx, rtemporal.ComputeResearchStatsActivityName).Get(ctx, &out)
	if err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("Research stats workflow finished", "version", out.Version)
	return out, nil
}
