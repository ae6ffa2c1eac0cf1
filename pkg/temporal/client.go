package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"google.golang.org/protobuf/types/known/durationpb"
)

type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Namespace string
	HostPort  string

	// Task Queues
	ReportsQueue string

	// Schedule IDs
	ResearchReportsScheduleID string

	logger *zap.Logger
}

type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	ReportsQueue []*taskqueuepb.PollerInfo `json:"reports_queue"`
}

// NewClient registers the namespace when missing and connects to it.
// TEMPORAL_HOSTPORT, TEMPORAL_NAMESPACE and TEMPORAL_RETENTION configure it.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", DefaultNamespace)
	retention := utils.EnvDuration("TEMPORAL_RETENTION", DefaultRetention)

	c := &Client{
		Namespace:                 ns,
		HostPort:                  host,
		ReportsQueue:              QueueReports,
		ResearchReportsScheduleID: ScheduleResearchReports,
		logger:                    logger,
	}

	if err := c.EnsureNamespace(ctx, retention); err != nil {
		return nil, err
	}

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, NewZapAdapter(logger))
	if err != nil {
		return nil, err
	}
	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		tClient.Close()
		return nil, err
	}

	c.TClient = tClient
	c.TSClient = tClient.ScheduleClient()
	return c, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// EnsureNamespace ensures the Temporal namespace exists, creating it if necessary.
func (c *Client) EnsureNamespace(ctx context.Context, retention time.Duration) error {
	nsClient, err := client.NewNamespaceClient(client.Options{
		HostPort: c.HostPort,
		Logger:   NewZapAdapter(c.logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	for attempt := 0; attempt < 10; attempt++ {
		_, err = nsClient.Describe(ctx, c.Namespace)
		if err == nil {
			return nil
		}

		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe namespace: %w", err)
		}

		if attempt == 0 {
			c.logger.Info("Registering Temporal namespace",
				zap.String("namespace", c.Namespace),
				zap.Duration("retention", retention))
			err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
				Namespace:                        c.Namespace,
				WorkflowExecutionRetentionPeriod: durationpb.New(retention),
			})
			var exists *serviceerror.NamespaceAlreadyExists
			if err != nil && !errors.As(err, &exists) {
				return fmt.Errorf("failed to register namespace: %w", err)
			}
		}

		// Wait for namespace to be available
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("namespace %s not available after registration", c.Namespace)
}

// EnsureResearchReportsSchedule creates the hourly research reports schedule unless it exists.
func (c *Client) EnsureResearchReportsSchedule(ctx context.Context) error {
	id := c.ResearchReportsScheduleID
	_, err := c.TSClient.GetHandle(ctx, id).Describe(ctx)
	if err == nil {
		c.logger.Info("Research reports schedule already exists", zap.String("id", id))
		return nil
	}

	var notFound *serviceerror.NotFound
	if !errors.As(err, &notFound) {
		return err
	}

	c.logger.Info("Creating research reports schedule", zap.String("id", id), zap.String("namespace", c.Namespace))
	_, err = c.TSClient.Create(ctx, client.ScheduleOptions{
		ID:   id,
		Spec: OneHourSpec(),
		Action: &client.ScheduleWorkflowAction{
			Workflow:                 ComputeResearchStatsWorkflowName,
			TaskQueue:                c.ReportsQueue,
			WorkflowExecutionTimeout: 30 * time.Minute,
			WorkflowTaskTimeout:      time.Minute,
		},
		// first run right away so stats exist before the first interval elapses
		TriggerImmediately: true,
	})
	return err
}

// Health returns the health of the Temporal client.
func (c *Client) Health(ctx context.Context) (Health, error) {
	h := Health{ConnectionOK: true}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if _, err := c.TClient.CheckHealth(ctx, nil); err != nil {
		h.ConnectionOK = false
		return h, err
	}

	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservice.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.ReportsQueue},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.ReportsQueue = rep.GetPollers()
		}
	}
	return h, nil
}

// Close releases the Temporal connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
