package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/newsroom/content-pipeline/internal/apps"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
)

func TestTemporalError(t *testing.T) {
	t.Run("message carries op, kind and ids", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartWorkflow",
			Kind:       ErrWorkflowAlreadyStarted,
			WorkflowID: "article-1",
			RunID:      "run-1",
			Err:        errors.New("boom"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartWorkflow")
		assert.Contains(t, msg, "workflow already started")
		assert.Contains(t, msg, "workflowID=article-1")
		assert.Contains(t, msg, "runID=run-1")
		assert.Contains(t, msg, "boom")
	})

	t.Run("message omits empty ids", func(t *testing.T) {
		err := &TemporalError{Op: "Health", Kind: ErrConnectionFailed}
		assert.Equal(t, "Health: connection failed", err.Error())
	})

	t.Run("matches kind and unwraps cause", func(t *testing.T) {
		cause := errors.New("cause")
		err := &TemporalError{Op: "GetStatus", Kind: ErrWorkflowNotFound, Err: cause}

		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.True(t, errors.Is(err, cause))
		assert.False(t, errors.Is(err, ErrQueryFailed))
	})
}

func TestWrapTemporalError(t *testing.T) {
	assert.Nil(t, wrapTemporalError("Op", nil, "", ""))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", serviceerror.NewNotFound("missing"), ErrWorkflowNotFound},
		{"already started", serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", ""), ErrWorkflowAlreadyStarted},
		{"namespace", serviceerror.NewNamespaceNotFound("ns"), ErrNamespaceNotFound},
		{"permission", serviceerror.NewPermissionDenied("no", ""), ErrPermissionDenied},
		{"invalid argument", serviceerror.NewInvalidArgument("bad"), ErrInvalidArgument},
		{"unavailable", serviceerror.NewUnavailable("down"), ErrConnectionFailed},
		{"context deadline", context.DeadlineExceeded, ErrDeadlineExceeded},
		{"context canceled", context.Canceled, ErrClientClosed},
		{"unknown", errors.New("odd"), ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapTemporalError("Op", tt.err, "article-1", "")

			var te *TemporalError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, "article-1", te.WorkflowID)
		})
	}

	assert.True(t, IsWorkflowNotFound(wrapTemporalError("Op", serviceerror.NewNotFound("x"), "", "")))
	assert.True(t, IsWorkflowAlreadyStarted(wrapTemporalError("Op", serviceerror.NewWorkflowExecutionAlreadyStarted("x", "", ""), "", "")))
	assert.True(t, IsConnectionFailed(wrapTemporalError("Op", errors.New("x"), "", "")))
	assert.False(t, IsQueryFailed(errors.New("x")))
}

func TestTLSConfig(t *testing.T) {
	t.Run("disabled yields nil", func(t *testing.T) {
		cfg, err := (&TLSConfig{}).buildTLSConfig()
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("server name is applied", func(t *testing.T) {
		cfg, err := (&TLSConfig{Enabled: true, ServerName: "temporal.internal"}).buildTLSConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "temporal.internal", cfg.ServerName)
		assert.False(t, cfg.InsecureSkipVerify)
	})

	t.Run("missing client certificate", func(t *testing.T) {
		_, err := (&TLSConfig{Enabled: true, CertPath: "/nope/cert.pem", KeyPath: "/nope/key.pem"}).buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load client certificate")
	})

	t.Run("missing CA bundle", func(t *testing.T) {
		_, err := (&TLSConfig{Enabled: true, CACertPath: "/nope/ca.pem"}).buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read CA certificate")
	})
}

func TestMetricsInterceptor(t *testing.T) {
	m := observability.NewMetrics("test_temporal_interceptor")
	interceptor := MetricsInterceptor(m)

	ok := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return nil
	}
	unavailable := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "down")
	}

	method := "/temporal.api.workflowservice.v1.WorkflowService/StartWorkflowExecution"
	require.NoError(t, interceptor(context.Background(), method, nil, nil, nil, ok))
	err := interceptor(context.Background(), method, nil, nil, nil, unavailable)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	assert.Equal(t, 2, testutil.CollectAndCount(m.TemporalRPCDuration))
}

func newPipelineClient(c client.Client) *PipelineClient {
	return NewPipelineClient(c, ClientConfig{TaskQueue: "articles"}, apps.Default(), domain.DefaultPipelineSettings())
}

func TestNewPipelineClient_Defaults(t *testing.T) {
	pc := newPipelineClient(&mocks.Client{})

	assert.Equal(t, "articles", pc.TaskQueue())
	assert.Equal(t, DefaultWorkflowExecutionTimeout, pc.executionTimeout)
	assert.Equal(t, DefaultHealthCheckTimeout, pc.healthCheckTimeout)
}

func TestBuildInput(t *testing.T) {
	pc := newPipelineClient(&mocks.Client{})

	t.Run("fills defaults and resolves profile", func(t *testing.T) {
		input, err := pc.BuildInput(domain.WorkflowRequest{Topic: "  Digital Nomad Visa Portugal  "})
		require.NoError(t, err)

		assert.Equal(t, "Digital Nomad Visa Portugal", input.Request.Topic)
		assert.Equal(t, "newsroom", input.Request.App)
		assert.Equal(t, "newsroom", input.Profile.Name)
		assert.Equal(t, DefaultTargetWordCount, input.Request.TargetWordCount)
		assert.Equal(t, DefaultSourceCount, input.Request.SourceCount)
		assert.Equal(t, DefaultWorkflowExecutionTimeout, input.Deadline)
		assert.Equal(t, domain.DefaultPipelineSettings(), input.Settings)
	})

	t.Run("rejects invalid request", func(t *testing.T) {
		_, err := pc.BuildInput(domain.WorkflowRequest{Topic: "ab", App: "newsroom"})

		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
	})

	t.Run("rejects unknown app", func(t *testing.T) {
		_, err := pc.BuildInput(domain.WorkflowRequest{Topic: "heat pumps", App: "gardening"})
		assert.True(t, errors.Is(err, domain.ErrUnknownApp))
	})
}

func TestStartWorkflow(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("article-fixed")

	var opts client.StartWorkflowOptions
	var input ArticlePipelineInput
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowTypeArticlePipeline, mock.Anything).
		Run(func(args mock.Arguments) {
			opts = args.Get(1).(client.StartWorkflowOptions)
			input = args.Get(3).(ArticlePipelineInput)
		}).
		Return(run, nil).Once()

	pc := newPipelineClient(c)
	id, err := pc.StartWorkflow(context.Background(), domain.WorkflowRequest{
		Topic:           "Digital Nomad Visa Portugal",
		App:             "relocation",
		TargetWordCount: 1500,
		SourceCount:     5,
	})
	require.NoError(t, err)

	assert.Equal(t, "article-fixed", id)
	assert.Contains(t, opts.ID, workflowIDPrefix)
	assert.Equal(t, "articles", opts.TaskQueue)
	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE, opts.WorkflowIDReusePolicy)
	assert.True(t, opts.WorkflowExecutionErrorWhenAlreadyStarted)
	assert.Greater(t, opts.WorkflowExecutionTimeout, input.Deadline)
	assert.Equal(t, "relocation", input.Profile.Name)
	c.AssertExpectations(t)
}

func TestStartWorkflowWithID_AlreadyStarted(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowTypeArticlePipeline, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", "")).Once()

	pc := newPipelineClient(c)
	_, err := pc.StartWorkflowWithID(context.Background(), "article-msg-7", domain.WorkflowRequest{Topic: "heat pumps"})

	require.Error(t, err)
	assert.True(t, IsWorkflowAlreadyStarted(err))
}

func TestStartWorkflow_InvalidRequestDoesNotStart(t *testing.T) {
	c := &mocks.Client{}
	pc := newPipelineClient(c)

	_, err := pc.StartWorkflow(context.Background(), domain.WorkflowRequest{Topic: "x"})
	require.Error(t, err)
	c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func describeResponse(st enumspb.WorkflowExecutionStatus, started time.Time) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: "article-1", RunId: "run-1"},
			Status:    st,
			StartTime: timestamppb.New(started),
		},
	}
}

// encodedProgress satisfies converter.EncodedValue for query results.
type encodedProgress struct {
	progress PipelineProgress
}

func (e encodedProgress) HasValue() bool { return true }

func (e encodedProgress) Get(valuePtr interface{}) error {
	*valuePtr.(*PipelineProgress) = e.progress
	return nil
}

func TestGetStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("running reports live status", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "article-1", "").
			Return(describeResponse(enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, started), nil)
		c.On("QueryWorkflow", mock.Anything, "article-1", "", QueryProgress).
			Return(encodedProgress{progress: PipelineProgress{Status: domain.StatusDrafting}}, nil)

		st, err := newPipelineClient(c).GetStatus(context.Background(), "article-1")
		require.NoError(t, err)

		assert.Equal(t, RunStateRunning, st.State)
		assert.Equal(t, domain.StatusDrafting, st.Status)
		assert.Equal(t, "run-1", st.RunID)
		require.NotNil(t, st.StartTime)
		assert.True(t, started.Equal(*st.StartTime))
		assert.Nil(t, st.CloseTime)
	})

	t.Run("timed out reports failed timeout", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "article-1", "").
			Return(describeResponse(enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, started), nil)

		st, err := newPipelineClient(c).GetStatus(context.Background(), "article-1")
		require.NoError(t, err)

		assert.Equal(t, RunStateFailed, st.State)
		require.NotNil(t, st.Error)
		assert.Equal(t, domain.KindTimeout, st.Error.Kind)
	})

	t.Run("completed carries result", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "article-1", "").
			Return(describeResponse(enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, started), nil)
		run := &mocks.WorkflowRun{}
		run.On("Get", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(1).(*domain.WorkflowResult) = domain.WorkflowResult{
					WorkflowID:  "article-1",
					Status:      domain.StatusPublished,
					PersistedID: "art-1",
				}
			}).
			Return(nil)
		c.On("GetWorkflow", mock.Anything, "article-1", "").Return(run)

		st, err := newPipelineClient(c).GetStatus(context.Background(), "article-1")
		require.NoError(t, err)

		assert.Equal(t, RunStateCompleted, st.State)
		assert.Equal(t, domain.StatusPublished, st.Status)
		require.NotNil(t, st.Result)
		assert.Equal(t, "art-1", st.Result.PersistedID)
	})

	t.Run("completed with failed result", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "article-1", "").
			Return(describeResponse(enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, started), nil)
		run := &mocks.WorkflowRun{}
		run.On("Get", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(1).(*domain.WorkflowResult) = domain.WorkflowResult{
					Status: domain.StatusFailed,
					Error:  domain.NewPipelineError(domain.KindInsufficientResearch, "2 usable sources"),
				}
			}).
			Return(nil)
		c.On("GetWorkflow", mock.Anything, "article-1", "").Return(run)

		st, err := newPipelineClient(c).GetStatus(context.Background(), "article-1")
		require.NoError(t, err)

		assert.Equal(t, RunStateFailed, st.State)
		require.NotNil(t, st.Error)
		assert.Equal(t, domain.KindInsufficientResearch, st.Error.Kind)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "missing", "").
			Return(nil, serviceerror.NewNotFound("missing"))

		_, err := newPipelineClient(c).GetStatus(context.Background(), "missing")
		assert.True(t, IsWorkflowNotFound(err))
	})
}

func TestGetResult_CancelledRun(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.Anything).Return(temporal.NewCanceledError("editor stopped it"))
	c.On("GetWorkflow", mock.Anything, "article-1", "").Return(run)

	res, err := newPipelineClient(c).GetResult(context.Background(), "article-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.KindCancelled, res.Error.Kind)
	assert.Equal(t, "run cancelled", res.Error.Message)
}

func TestGetResult_TimedOutRunKeepsCauseOutOfMessage(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	cause := errors.New("pq: dial tcp 10.0.0.5:5432: connect: connection refused")
	run.On("Get", mock.Anything, mock.Anything).
		Return(temporal.NewTimeoutError(enumspb.TIMEOUT_TYPE_START_TO_CLOSE, cause))
	c.On("GetWorkflow", mock.Anything, "article-1", "").Return(run)

	res, err := newPipelineClient(c).GetResult(context.Background(), "article-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.KindTimeout, res.Error.Kind)
	assert.Equal(t, "run exceeded its execution timeout", res.Error.Message)
	assert.NotContains(t, res.Error.Message, "10.0.0.5")
}

func TestCancel(t *testing.T) {
	c := &mocks.Client{}
	c.On("SignalWorkflow", mock.Anything, "article-1", "", SignalCancel, CancelSignal{Reason: "duplicate topic"}).
		Return(nil).Once()

	require.NoError(t, newPipelineClient(c).Cancel(context.Background(), "article-1", "duplicate topic"))
	c.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	c := &mocks.Client{}
	c.On("CheckHealth", mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewUnavailable("down")).Once()

	err := newPipelineClient(c).Health(context.Background())
	assert.True(t, IsConnectionFailed(err))
}

func TestClosedPipelineClient(t *testing.T) {
	c := &mocks.Client{}
	c.On("Close").Return().Once()

	pc := newPipelineClient(c)
	pc.Close()
	pc.Close()
	c.AssertNumberOfCalls(t, "Close", 1)

	ctx := context.Background()
	_, err := pc.StartWorkflow(ctx, domain.WorkflowRequest{Topic: "heat pumps"})
	assert.True(t, errors.Is(err, ErrClientClosed))
	_, err = pc.GetStatus(ctx, "article-1")
	assert.True(t, errors.Is(err, ErrClientClosed))
	_, err = pc.GetResult(ctx, "article-1")
	assert.True(t, errors.Is(err, ErrClientClosed))
	_, err = pc.QueryProgress(ctx, "article-1")
	assert.True(t, errors.Is(err, ErrClientClosed))
	assert.True(t, errors.Is(pc.Cancel(ctx, "article-1", ""), ErrClientClosed))
	assert.True(t, errors.Is(pc.Health(ctx), ErrClientClosed))
}
