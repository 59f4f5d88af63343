package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Worker concurrency is sized for journal activities, which are short
// mongo transactions.
const (
	maxConcurrentActivities    = 50
	maxConcurrentWorkflowTasks = 50
)

type Config struct {
	HostPort  string `yaml:"hostPort"`
	Namespace string `yaml:"namespace"`
	Identity  string `yaml:"identity"`
	TaskQueue string `yaml:"taskQueue"`
}

func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "cfs-destuffing-service",
		TaskQueue: TaskQueues.Destuffing,
	}
}

// Client is a Temporal connection bound to one task queue
type Client struct {
	client    client.Client
	identity  string
	taskQueue string
}

// NewClient dials the Temporal frontend; a nil config uses DefaultConfig
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial temporal at %s: %w", config.HostPort, err)
	}
	return &Client{client: c, identity: config.Identity, taskQueue: config.TaskQueue}, nil
}

func (c *Client) Close() { c.client.Close() }

// SignalWithStartWorkflow delivers a signal, starting workflowName with args
// on the client's task queue when no run with workflowID is open.
func (c *Client) SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{}, workflowName string, args ...interface{}) error {
	options := client.StartWorkflowOptions{ID: workflowID, TaskQueue: c.taskQueue}
	if _, err := c.client.SignalWithStartWorkflow(ctx, workflowID, signalName, signalArg, options, workflowName, args...); err != nil {
		return fmt.Errorf("failed to signal workflow %s: %w", workflowID, err)
	}
	return nil
}

// NewWorker polls the client's task queue
func (c *Client) NewWorker() worker.Worker {
	return worker.New(c.client, c.taskQueue, worker.Options{
		Identity:                               c.identity,
		MaxConcurrentActivityExecutionSize:     maxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: maxConcurrentWorkflowTasks,
	})
}

// DefaultActivityOptions retries an activity five times with exponential
// backoff capped at a minute.
func DefaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}
