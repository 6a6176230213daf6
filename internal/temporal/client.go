package temporal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
)

// Default timeouts for pipeline runs and health checks.
const (
	// DefaultWorkflowExecutionTimeout is the maximum time a pipeline run is allowed to take.
	DefaultWorkflowExecutionTimeout = 45 * time.Minute

	// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second

	// executionTimeoutGrace lets the in-workflow deadline record FAILED/Timeout
	// before the server-side execution timeout kills the run.
	executionTimeoutGrace = 2 * time.Minute

	workflowIDPrefix = "article-"

	// Request fields left at zero take these values.
	DefaultTargetWordCount = 1500
	DefaultSourceCount     = 5
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID already exists.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrQueryFailed indicates the workflow query failed.
	ErrQueryFailed = errors.New("query failed")

	// ErrSignalFailed indicates the workflow signal failed.
	ErrSignalFailed = errors.New("signal failed")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNamespaceNotFound indicates the namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted indicates resource limits have been reached.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// =============================================================================
// Error Helpers
// =============================================================================

// TemporalError wraps a Temporal error with the operation and workflow it concerns.
type TemporalError struct {
	Op         string // Operation that failed
	Kind       error  // Category of error (sentinel)
	WorkflowID string
	RunID      string
	Err        error
}

// Error returns the error message.
func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s", e.WorkflowID)
		if e.RunID != "" {
			msg += fmt.Sprintf(", runID=%s", e.RunID)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's Kind.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTemporalError maps a Temporal SDK error onto a TemporalError.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{
		Op:         op,
		WorkflowID: workflowID,
		RunID:      runID,
		Err:        err,
	}

	var (
		notFoundErr          *serviceerror.NotFound
		alreadyStartedErr    *serviceerror.WorkflowExecutionAlreadyStarted
		namespaceNotFoundErr *serviceerror.NamespaceNotFound
		permissionDeniedErr  *serviceerror.PermissionDenied
		invalidArgumentErr   *serviceerror.InvalidArgument
		resourceExhaustedErr *serviceerror.ResourceExhausted
		deadlineExceededErr  *serviceerror.DeadlineExceeded
		queryFailedErr       *serviceerror.QueryFailed
		unavailableErr       *serviceerror.Unavailable
	)

	switch {
	case errors.As(err, &notFoundErr):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStartedErr):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &namespaceNotFoundErr):
		te.Kind = ErrNamespaceNotFound
	case errors.As(err, &permissionDeniedErr):
		te.Kind = ErrPermissionDenied
	case errors.As(err, &invalidArgumentErr):
		te.Kind = ErrInvalidArgument
	case errors.As(err, &resourceExhaustedErr):
		te.Kind = ErrResourceExhausted
	case errors.As(err, &deadlineExceededErr):
		te.Kind = ErrDeadlineExceeded
	case errors.As(err, &queryFailedErr):
		te.Kind = ErrQueryFailed
	case errors.As(err, &unavailableErr):
		te.Kind = ErrConnectionFailed
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		te.Kind = ErrClientClosed
	default:
		te.Kind = ErrConnectionFailed
	}

	return te
}

// IsWorkflowNotFound checks if the error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted checks if the error indicates a workflow already started.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsQueryFailed checks if the error indicates a query failure.
func IsQueryFailed(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

// IsConnectionFailed checks if the error indicates a connection failure.
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// =============================================================================
// Connection
// =============================================================================

// TLSConfig contains TLS configuration for the Temporal client.
type TLSConfig struct {
	Enabled bool

	// CertPath and KeyPath locate the PEM client certificate for mTLS.
	CertPath string
	KeyPath  string

	// CACertPath is the PEM CA bundle used to verify the frontend.
	CACertPath string

	ServerName string

	// InsecureSkipVerify disables certificate verification. Development only.
	InsecureSkipVerify bool
}

func (t *TLSConfig) buildTLSConfig() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify,
		ServerName:         t.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	if t.CertPath != "" && t.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if t.CACertPath != "" {
		caCert, err := os.ReadFile(t.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	HostPort  string
	Namespace string

	// TaskQueue is the queue pipeline runs are started on.
	TaskQueue string

	TLS *TLSConfig

	// ExecutionTimeout bounds a whole pipeline run. Defaults to 45 minutes.
	ExecutionTimeout time.Duration

	// HealthCheckTimeout defaults to 5 seconds.
	HealthCheckTimeout time.Duration

	// Logger receives SDK logs. Nil keeps the SDK default.
	Logger log.Logger

	// Metrics, when set, records the latency of every frontend RPC.
	Metrics *observability.Metrics
}

// NewClient dials the Temporal frontend.
func NewClient(cfg ClientConfig) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
	}

	if cfg.Metrics != nil {
		options.ConnectionOptions.DialOptions = append(options.ConnectionOptions.DialOptions,
			grpc.WithChainUnaryInterceptor(MetricsInterceptor(cfg.Metrics)))
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("configure TLS: %w", err)
		}
		options.ConnectionOptions.TLS = tlsConfig
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// MetricsInterceptor records the duration and status code of every unary
// RPC the SDK sends to the Temporal frontend.
func MetricsInterceptor(m *observability.Metrics) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		m.RecordTemporalRPC(path.Base(method), status.Code(err).String(), time.Since(start).Seconds())
		return err
	}
}

// =============================================================================
// Pipeline Client
// =============================================================================

// ProfileResolver resolves the app profile of a request.
type ProfileResolver interface {
	Lookup(app string) (domain.AppProfile, error)
	DefaultApp() string
}

// Run states reported by GetStatus.
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
)

// RunStatus is the non-blocking view of a pipeline run.
type RunStatus struct {
	WorkflowID string                 `json:"workflow_id"`
	RunID      string                 `json:"run_id"`
	State      string                 `json:"state"`
	Status     domain.PipelineStatus  `json:"status,omitempty"`
	Result     *domain.WorkflowResult `json:"result,omitempty"`
	Error      *domain.PipelineError  `json:"error,omitempty"`
	StartTime  *time.Time             `json:"start_time,omitempty"`
	CloseTime  *time.Time             `json:"close_time,omitempty"`
}

// PipelineClient starts and steers article pipeline runs. Callers address a
// run by its workflow ID, which StartWorkflow returns.
type PipelineClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	executionTimeout   time.Duration
	healthCheckTimeout time.Duration
	profiles           ProfileResolver
	settings           domain.PipelineSettings
	closed             bool
}

// NewPipelineClient wraps c. Profiles resolve request apps and settings are
// passed to every run.
func NewPipelineClient(c client.Client, cfg ClientConfig, profiles ProfileResolver, settings domain.PipelineSettings) *PipelineClient {
	pc := &PipelineClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		executionTimeout:   cfg.ExecutionTimeout,
		healthCheckTimeout: cfg.HealthCheckTimeout,
		profiles:           profiles,
		settings:           settings,
	}
	if pc.executionTimeout <= 0 {
		pc.executionTimeout = DefaultWorkflowExecutionTimeout
	}
	if pc.healthCheckTimeout <= 0 {
		pc.healthCheckTimeout = DefaultHealthCheckTimeout
	}
	return pc
}

// Close closes the underlying client. It is safe to call more than once.
func (c *PipelineClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *PipelineClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// TaskQueue returns the task queue runs are started on.
func (c *PipelineClient) TaskQueue() string {
	return c.taskQueue
}

// Health checks connectivity to the Temporal frontend.
func (c *PipelineClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartWorkflow validates req and starts a run under a fresh workflow ID.
func (c *PipelineClient) StartWorkflow(ctx context.Context, req domain.WorkflowRequest) (string, error) {
	return c.StartWorkflowWithID(ctx, workflowIDPrefix+uuid.NewString(), req)
}

// StartWorkflowWithID validates req and starts a run under workflowID. The
// ID doubles as the article idempotency key, so starting the same ID twice
// fails with ErrWorkflowAlreadyStarted instead of creating a second run.
func (c *PipelineClient) StartWorkflowWithID(ctx context.Context, workflowID string, req domain.WorkflowRequest) (string, error) {
	if c.isClosed() {
		return "", &TemporalError{Op: "StartWorkflow", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	input, err := c.BuildInput(req)
	if err != nil {
		return "", err
	}

	opts := client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                c.taskQueue,
		WorkflowExecutionTimeout:                 input.Deadline + executionTimeoutGrace,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	run, err := c.client.ExecuteWorkflow(ctx, opts, WorkflowTypeArticlePipeline, input)
	if err != nil {
		return "", wrapTemporalError("StartWorkflow", err, workflowID, "")
	}
	return run.GetID(), nil
}

// BuildInput validates req, resolves its app profile and assembles the
// workflow input. An empty app resolves to the default app.
func (c *PipelineClient) BuildInput(req domain.WorkflowRequest) (ArticlePipelineInput, error) {
	if req.App == "" && c.profiles != nil {
		req.App = c.profiles.DefaultApp()
	}
	if req.TargetWordCount == 0 {
		req.TargetWordCount = DefaultTargetWordCount
	}
	if req.SourceCount == 0 {
		req.SourceCount = DefaultSourceCount
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if err := req.Validate(); err != nil {
		return ArticlePipelineInput{}, err
	}

	var profile domain.AppProfile
	if c.profiles != nil {
		p, err := c.profiles.Lookup(req.App)
		if err != nil {
			return ArticlePipelineInput{}, err
		}
		profile = p
		req.App = p.Name
	}

	return ArticlePipelineInput{
		Request:  req,
		Profile:  profile,
		Settings: c.settings,
		Deadline: c.executionTimeout,
	}, nil
}

// GetStatus reports the state of a run without waiting for it to finish.
func (c *PipelineClient) GetStatus(ctx context.Context, workflowID string) (*RunStatus, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "GetStatus", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	resp, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, wrapTemporalError("GetStatus", err, workflowID, "")
	}

	info := resp.GetWorkflowExecutionInfo()
	st := &RunStatus{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		StartTime:  timestampPtr(info.GetStartTime()),
		CloseTime:  timestampPtr(info.GetCloseTime()),
	}

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		st.State = RunStateRunning
		if progress, err := c.QueryProgress(ctx, workflowID); err == nil {
			st.Status = progress.Status
		}
		return st, nil
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		st.State = RunStateFailed
		st.Status = domain.StatusFailed
		st.Error = domain.NewPipelineError(domain.KindTimeout, "run exceeded its execution timeout")
		return st, nil
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		st.State = RunStateFailed
		st.Status = domain.StatusCancelled
		st.Error = domain.NewPipelineError(domain.KindCancelled, "run was terminated")
		return st, nil
	}

	result, err := c.GetResult(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	st.Result = result
	st.Status = result.Status
	st.Error = result.Error
	st.State = RunStateCompleted
	if result.Status == domain.StatusFailed || result.Status == domain.StatusCancelled {
		st.State = RunStateFailed
	}
	return st, nil
}

// GetResult blocks until the run finishes and returns its result. Runs that
// were cancelled or timed out yield a synthesised result rather than an error.
func (c *PipelineClient) GetResult(ctx context.Context, workflowID string) (*domain.WorkflowResult, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "GetResult", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	var result domain.WorkflowResult
	err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result)
	if err == nil {
		return &result, nil
	}

	var (
		canceledErr *temporal.CanceledError
		timeoutErr  *temporal.TimeoutError
		termErr     *temporal.TerminatedError
	)
	switch {
	case errors.As(err, &canceledErr):
		return terminalResult(workflowID, domain.StatusCancelled, domain.KindCancelled, "run cancelled"), nil
	case errors.As(err, &termErr):
		return terminalResult(workflowID, domain.StatusCancelled, domain.KindCancelled, "run terminated"), nil
	case errors.As(err, &timeoutErr):
		return terminalResult(workflowID, domain.StatusFailed, domain.KindTimeout, "run exceeded its execution timeout"), nil
	}

	var execErr *temporal.WorkflowExecutionError
	if errors.As(err, &execErr) {
		return terminalResult(workflowID, domain.StatusFailed, domain.KindActivityFailed, "run failed"), nil
	}
	return nil, wrapTemporalError("GetResult", err, workflowID, "")
}

// Cancel asks a run to stop. The run records CANCELLED before it ends.
func (c *PipelineClient) Cancel(ctx context.Context, workflowID, reason string) error {
	if c.isClosed() {
		return &TemporalError{Op: "Cancel", Kind: ErrClientClosed, WorkflowID: workflowID}
	}
	err := c.client.SignalWorkflow(ctx, workflowID, "", SignalCancel, CancelSignal{Reason: reason})
	if err != nil {
		return wrapTemporalError("Cancel", err, workflowID, "")
	}
	return nil
}

// QueryProgress returns the live progress of a run.
func (c *PipelineClient) QueryProgress(ctx context.Context, workflowID string) (*PipelineProgress, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "QueryProgress", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	value, err := c.client.QueryWorkflow(ctx, workflowID, "", QueryProgress)
	if err != nil {
		return nil, wrapTemporalError("QueryProgress", err, workflowID, "")
	}

	var progress PipelineProgress
	if err := value.Get(&progress); err != nil {
		return nil, &TemporalError{Op: "QueryProgress", Kind: ErrQueryFailed, WorkflowID: workflowID, Err: err}
	}
	return &progress, nil
}

// terminalResult synthesises the result of a run that ended without
// returning one. The engine's error text is not copied into it.
func terminalResult(workflowID string, st domain.PipelineStatus, kind domain.ErrorKind, message string) *domain.WorkflowResult {
	return &domain.WorkflowResult{
		WorkflowID: workflowID,
		Status:     st,
		Error:      domain.NewPipelineError(kind, message),
	}
}

func timestampPtr(ts *timestamppb.Timestamp) *time.Time {
	if ts == nil || !ts.IsValid() {
		return nil
	}
	t := ts.AsTime()
	return &t
}
