// Package temporal connects the article pipeline to Temporal.
//
// It holds the names and payloads shared by every process that touches a
// run (workflow type, cancel signal, progress query, ArticlePipelineInput),
// the PipelineClient used by the HTTP gateway, the intake listener and the
// CLI, and the WorkerManager used by cmd/worker.
//
// # Starting a run
//
//	c, err := temporal.NewClient(temporal.ClientConfigFrom(cfg.Temporal))
//	if err != nil {
//	    return err
//	}
//	pc := temporal.NewPipelineClient(c, temporal.ClientConfigFrom(cfg.Temporal), registry, cfg.Pipeline.Settings())
//	defer pc.Close()
//
//	workflowID, err := pc.StartWorkflow(ctx, domain.WorkflowRequest{
//	    Topic:           "Digital Nomad Visa Portugal",
//	    App:             "relocation",
//	    TargetWordCount: 1500,
//	    SourceCount:     5,
//	})
//
// The workflow ID identifies the run for GetStatus, GetResult, QueryProgress
// and Cancel. It is also the idempotency key of the persisted article.
//
// # Deadlines
//
// ArticlePipelineInput.Deadline carries the configured execution timeout into
// the workflow, which ends the run FAILED with kind Timeout when it elapses.
// The server-side WorkflowExecutionTimeout is set slightly longer and only
// fires if the workflow cannot record the timeout itself; GetStatus reports
// such runs as failed/Timeout too.
//
// Subpackages:
//
//   - workflows: the ArticlePipelineWorkflow and its state transitions
//   - activities: research, generation, image, persistence, graph, status
//     and event activities
//   - resilience: error classification, retry policies and phase criticality
package temporal
