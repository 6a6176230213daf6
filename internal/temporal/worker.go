package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/newsroom/content-pipeline/internal/config"
)

// Worker pool defaults applied to zero-valued WorkerConfig fields.
const (
	defaultMaxConcurrentActivities    = 100
	defaultMaxConcurrentWorkflowTasks = 50
	defaultActivityPollers            = 4
	defaultWorkflowPollers            = 2
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TaskQueue string

	// MaxConcurrentActivityExecutionSize bounds concurrent activity executions.
	// Research, generation and image calls all count against it.
	MaxConcurrentActivityExecutionSize int

	MaxConcurrentWorkflowTaskExecutionSize int
	MaxConcurrentActivityTaskPollers       int
	MaxConcurrentWorkflowTaskPollers       int
}

// DefaultWorkerConfig returns a WorkerConfig with default pool sizes.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              taskQueue,
		MaxConcurrentActivityExecutionSize:     defaultMaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: defaultMaxConcurrentWorkflowTasks,
		MaxConcurrentActivityTaskPollers:       defaultActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       defaultWorkflowPollers,
	}
}

// WorkerConfigFrom builds a WorkerConfig from the temporal config section.
func WorkerConfigFrom(cfg config.TemporalConfig) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              cfg.TaskQueue,
		MaxConcurrentActivityExecutionSize:     cfg.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Worker.MaxConcurrentWorkflowTasks,
		MaxConcurrentActivityTaskPollers:       cfg.Worker.ActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       cfg.Worker.WorkflowPollers,
	}
}

// ClientConfigFrom builds a ClientConfig from the temporal config section.
func ClientConfigFrom(cfg config.TemporalConfig) ClientConfig {
	cc := ClientConfig{
		HostPort:         cfg.HostPort,
		Namespace:        cfg.Namespace,
		TaskQueue:        cfg.TaskQueue,
		ExecutionTimeout: cfg.ExecutionTimeout,
	}
	if cfg.TLS.Enabled {
		cc.TLS = &TLSConfig{
			Enabled:    true,
			CertPath:   cfg.TLS.CertPath,
			KeyPath:    cfg.TLS.KeyPath,
			CACertPath: cfg.TLS.CAPath,
			ServerName: cfg.TLS.ServerName,
		}
	}
	return cc
}

// namedWorkflow is a workflow function registered under an explicit name.
type namedWorkflow struct {
	fn   interface{}
	name string
}

// WorkflowRegistry records the workflows registered on a worker.
type WorkflowRegistry struct {
	workflows []namedWorkflow
}

// NewWorkflowRegistry creates an empty workflow registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{workflows: make([]namedWorkflow, 0)}
}

// Register records a workflow function under name. An empty name keeps the
// function name.
func (r *WorkflowRegistry) Register(fn interface{}, name string) {
	r.workflows = append(r.workflows, namedWorkflow{fn: fn, name: name})
}

// Names returns the explicit names of registered workflows.
func (r *WorkflowRegistry) Names() []string {
	names := make([]string, 0, len(r.workflows))
	for _, w := range r.workflows {
		if w.name != "" {
			names = append(names, w.name)
		}
	}
	return names
}

// ActivityRegistry records the activity structs registered on a worker.
type ActivityRegistry struct {
	activities []interface{}
}

// NewActivityRegistry creates an empty activity registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{activities: make([]interface{}, 0)}
}

// Register records an activity function or struct.
func (r *ActivityRegistry) Register(activity interface{}) {
	r.activities = append(r.activities, activity)
}

// Len returns the number of registered activities.
func (r *ActivityRegistry) Len() int {
	return len(r.activities)
}

// WorkerManager owns the pipeline worker and what is registered on it.
type WorkerManager struct {
	worker     worker.Worker
	taskQueue  string
	workflows  *WorkflowRegistry
	activities *ActivityRegistry
}

func workerOptionsFromConfig(cfg WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTaskExecutionSize,
		MaxConcurrentActivityTaskPollers:       cfg.MaxConcurrentActivityTaskPollers,
		MaxConcurrentWorkflowTaskPollers:       cfg.MaxConcurrentWorkflowTaskPollers,
	}

	if options.MaxConcurrentActivityExecutionSize <= 0 {
		options.MaxConcurrentActivityExecutionSize = defaultMaxConcurrentActivities
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize <= 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = defaultMaxConcurrentWorkflowTasks
	}
	if options.MaxConcurrentActivityTaskPollers <= 0 {
		options.MaxConcurrentActivityTaskPollers = defaultActivityPollers
	}
	if options.MaxConcurrentWorkflowTaskPollers <= 0 {
		options.MaxConcurrentWorkflowTaskPollers = defaultWorkflowPollers
	}
	return options
}

// NewWorkerManager creates a worker polling cfg.TaskQueue.
func NewWorkerManager(c client.Client, cfg WorkerConfig) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}

	return &WorkerManager{
		worker:     worker.New(c, cfg.TaskQueue, workerOptionsFromConfig(cfg)),
		taskQueue:  cfg.TaskQueue,
		workflows:  NewWorkflowRegistry(),
		activities: NewActivityRegistry(),
	}, nil
}

// RegisterWorkflow registers fn under name. Clients start runs by name, so
// the pipeline workflow must be registered as WorkflowTypeArticlePipeline.
func (m *WorkerManager) RegisterWorkflow(fn interface{}, name string) {
	m.workflows.Register(fn, name)
	if name == "" {
		m.worker.RegisterWorkflow(fn)
		return
	}
	m.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
}

// RegisterActivity registers an activity struct; each exported method becomes an activity.
func (m *WorkerManager) RegisterActivity(activity interface{}) {
	m.activities.Register(activity)
	m.worker.RegisterActivity(activity)
}

// Worker returns the underlying Temporal worker.
func (m *WorkerManager) Worker() worker.Worker {
	return m.worker
}

// TaskQueue returns the task queue the worker polls.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker until ctx is cancelled or the process is interrupted.
func (m *WorkerManager) Start(ctx context.Context) error {
	return StartWorker(ctx, m.worker)
}

// Stop stops the worker gracefully.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}

// StartWorker runs w and blocks until ctx is cancelled or the worker exits.
func StartWorker(ctx context.Context, w worker.Worker) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
