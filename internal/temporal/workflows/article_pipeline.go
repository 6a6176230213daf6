// Package workflows defines the Temporal workflow that turns a topic into a
// published article: research, brief, draft, quality gate, images,
// persistence and knowledge-graph sync.
package workflows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/imagegen"
	"github.com/newsroom/content-pipeline/internal/quality"
	litemporal "github.com/newsroom/content-pipeline/internal/temporal"
	"github.com/newsroom/content-pipeline/internal/temporal/activities"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// Re-export signal/query name constants from the parent temporal package for
// convenience.
const (
	SignalCancel  = litemporal.SignalCancel
	QueryProgress = litemporal.QueryProgress
)

// ArticlePipelineInput is an alias for the shared input type defined in the
// parent temporal package.
type ArticlePipelineInput = litemporal.ArticlePipelineInput

// PipelineProgress is an alias for the shared progress query type.
type PipelineProgress = litemporal.PipelineProgress

const (
	// researchRetryFactor multiplies the requested source counts on the
	// broadened research retry.
	researchRetryFactor = 2

	// maxResearchResults caps the per-provider request on the retry.
	maxResearchResults = 40

	defaultCancelReason = "cancellation requested"
)

// imageNamespace seeds the deterministic IDs of generated images.
var imageNamespace = uuid.MustParse("0b6f3c52-58a4-4d0e-8a0f-5d2b1f7c9e44")

// Activity nil-pointer variables for method references.
var (
	researchAct    *activities.ResearchActivities
	generationAct  *activities.GenerationActivities
	imageAct       *activities.ImageActivities
	persistenceAct *activities.PersistenceActivities
	graphAct       *activities.GraphActivities
	statusAct      *activities.StatusActivities
	eventAct       *activities.EventActivities
)

// pipeline holds the mutable bookkeeping of one run. The PipelineState itself
// only changes through Advance.
type pipeline struct {
	input      ArticlePipelineInput
	workflowID string
	runID      string
	startedAt  time.Time
	logger     log.Logger

	state           domain.PipelineState
	retry           resilience.Progress
	researchRetried bool
	crawled         map[string]bool

	cancelReason     string
	deadlineExceeded bool
}

// ArticlePipelineWorkflow runs one article through the content pipeline.
//
// The run proceeds through RESEARCHING, BRIEFING, DRAFTING and QUALITY_CHECK
// (repeated while the regeneration budget lasts), IMAGING, PERSISTING and
// SYNCING, and ends PUBLISHED, REJECTED, FAILED or CANCELLED. Every status
// change is recorded in the run table and terminal states publish a run
// event.
//
// Terminal outcomes are returned as results with a nil error. Cancellation,
// through the "cancel" signal or the engine, returns a canceled error after
// the CANCELLED status has been recorded. The "progress" query reports the
// current state.
func ArticlePipelineWorkflow(ctx workflow.Context, input ArticlePipelineInput) (*domain.WorkflowResult, error) {
	info := workflow.GetInfo(ctx)
	p := &pipeline{
		input:      input,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
		startedAt:  info.WorkflowStartTime,
		logger:     workflow.GetLogger(ctx),
		state:      NewState(input),
		crawled:    make(map[string]bool),
	}

	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (PipelineProgress, error) {
		return p.snapshot(), nil
	}); err != nil {
		p.logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	runCtx, cancel := workflow.WithCancel(ctx)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var sig litemporal.CancelSignal
		workflow.GetSignalChannel(gCtx, SignalCancel).Receive(gCtx, &sig)
		p.logger.Info("received cancel signal", "reason", sig.Reason)
		p.cancelReason = sig.Reason
		cancel()
	})
	if input.Deadline > 0 {
		workflow.Go(ctx, func(gCtx workflow.Context) {
			if err := workflow.NewTimer(gCtx, input.Deadline).Get(gCtx, nil); err != nil {
				return
			}
			p.logger.Warn("run deadline exceeded", "deadline", input.Deadline)
			p.deadlineExceeded = true
			cancel()
		})
	}

	p.logger.Info("article pipeline started",
		"app", input.Request.App,
		"topic", input.Request.Topic,
		"targetWordCount", input.Request.TargetWordCount,
	)
	p.recordStatus(runCtx, "", "")

	result := p.run(runCtx)
	if runCtx.Err() != nil && !p.state.Status.IsTerminal() {
		return p.interrupted(ctx)
	}
	return result, nil
}

func (p *pipeline) run(ctx workflow.Context) *domain.WorkflowResult {
	if perr := p.research(ctx); perr != nil {
		return p.failed(ctx, perr)
	}
	if perr := p.brief(ctx); perr != nil {
		return p.failed(ctx, perr)
	}

	passed, perr := p.draft(ctx)
	if perr != nil {
		return p.failed(ctx, perr)
	}
	if !passed {
		return p.rejected(ctx)
	}

	if perr := p.images(ctx); perr != nil {
		return p.failed(ctx, perr)
	}

	status := domain.ArticlePendingReview
	if p.input.Request.AutoPublish {
		status = domain.ArticlePublished
	}
	if perr := p.persist(ctx, status); perr != nil {
		return p.failed(ctx, perr)
	}
	if perr := p.syncGraph(ctx); perr != nil {
		return p.failed(ctx, perr)
	}
	return p.published(ctx)
}

// research gathers sources from news search and deep research in parallel,
// optionally enriches them with a crawl, and retries once with a broadened
// query when fewer than MinSources usable sources were found.
func (p *pipeline) research(ctx workflow.Context) *domain.PipelineError {
	p.setStatus(ctx, domain.StatusResearching)

	req := p.input.Request
	topic, count := req.Topic, req.SourceCount
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt == 2 {
			topic = domain.BroadenQuery(topic)
			count = min(count*researchRetryFactor, maxResearchResults)
			p.researchRetried = true
			p.logger.Warn("too few usable sources, retrying research with a broadened query",
				"usable", p.state.UsableSourceCount(),
				"minSources", p.input.Settings.MinSources,
				"query", topic,
			)
		}

		found, perr := p.gather(ctx, topic, count)
		if perr != nil {
			return perr
		}
		p.advance(ResearchGathered{Sources: found})

		if req.Flags.DeepCrawl {
			if perr := p.crawl(ctx, count); perr != nil {
				return perr
			}
		}

		if p.state.UsableSourceCount() >= p.input.Settings.MinSources {
			p.logger.Info("research complete",
				"sources", len(p.state.Sources),
				"usable", p.state.UsableSourceCount(),
			)
			return nil
		}
	}

	return domain.NewPipelineError(domain.KindInsufficientResearch, fmt.Sprintf(
		"found %d usable sources after a broadened retry, need %d",
		p.state.UsableSourceCount(), p.input.Settings.MinSources))
}

// gather issues both research activities before waiting on either and
// resolves them in issue order. A provider that exhausts its retries
// contributes no sources.
func (p *pipeline) gather(ctx workflow.Context, topic string, count int) ([]domain.Source, *domain.PipelineError) {
	calls := []struct {
		phase    string
		activity string
		future   workflow.Future
	}{
		{
			phase:    resilience.PhaseSearchNews,
			activity: resilience.ActivitySearchNews,
			future: workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivitySearchNews),
				researchAct.SearchNews, activities.SearchNewsInput{Topic: topic, MaxResults: count}),
		},
		{
			phase:    resilience.PhaseDeepResearch,
			activity: resilience.ActivityDeepResearch,
			future: workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityDeepResearch),
				researchAct.DeepResearch, activities.DeepResearchInput{Topic: topic, SourceCount: count}),
		},
	}

	var sources []domain.Source
	for _, call := range calls {
		var out activities.ResearchOutput
		res := resilience.ExecutePhase(ctx, resilience.PhaseFor(call.phase), &p.retry, func() error {
			return call.future.Get(ctx, &out)
		})
		if res.Failed {
			return nil, p.stageError(call.phase, call.activity, res)
		}
		if !res.OK() {
			p.logger.Warn("research provider degraded", "phase", call.phase, "error", res.Err)
			continue
		}
		sources = append(sources, out.Sources...)
	}
	return sources, nil
}

// crawl fetches the full text of sources not crawled yet.
func (p *pipeline) crawl(ctx workflow.Context, maxPages int) *domain.PipelineError {
	var urls []string
	for _, src := range p.state.Sources {
		key := urlKey(src.URL)
		if key == "" || p.crawled[key] || len(urls) >= maxPages {
			continue
		}
		p.crawled[key] = true
		urls = append(urls, src.URL)
	}
	if len(urls) == 0 {
		return nil
	}

	var out activities.ResearchOutput
	res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseDeepCrawl), &p.retry, func() error {
		return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityDeepCrawl),
			researchAct.DeepCrawl, activities.DeepCrawlInput{URLs: urls, MaxPages: len(urls)}).Get(ctx, &out)
	})
	if res.Failed {
		return p.stageError(resilience.PhaseDeepCrawl, resilience.ActivityDeepCrawl, res)
	}
	if !res.OK() {
		p.logger.Warn("deep crawl skipped", "urls", len(urls), "error", res.Err)
		return nil
	}
	p.advance(PagesCrawled{Pages: out.Sources})
	return nil
}

func (p *pipeline) brief(ctx workflow.Context) *domain.PipelineError {
	p.setStatus(ctx, domain.StatusBriefing)

	var out activities.ExtractBriefOutput
	res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseBrief), &p.retry, func() error {
		return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityExtractBrief),
			generationAct.ExtractBrief, activities.ExtractBriefInput{
				Topic:   p.input.Request.Topic,
				Sources: UsableSources(p.state),
			}).Get(ctx, &out)
	})
	if !res.OK() {
		return p.stageError(resilience.PhaseBrief, resilience.ActivityExtractBrief, res)
	}

	p.advance(BriefExtracted{Brief: out.Brief})
	if len(p.state.Brief.Citations) == 0 {
		return domain.NewPipelineError(domain.KindInsufficientResearch,
			"research brief cites none of the gathered sources")
	}
	p.logger.Info("brief extracted",
		"entities", len(p.state.Brief.Entities),
		"citations", len(p.state.Brief.Citations),
	)
	return nil
}

// draft runs the generate / check loop. It reports whether the final draft
// passed the quality gate. One initial attempt plus RegenerationBudget
// regenerations are shared by word-count and quality failures.
func (p *pipeline) draft(ctx workflow.Context) (bool, *domain.PipelineError) {
	req := p.input.Request
	settings := p.input.Settings
	attempts := 1 + max(settings.RegenerationBudget, 0)

	feedback := ""
	for attempt := 1; attempt <= attempts; attempt++ {
		last := attempt == attempts
		p.setStatus(ctx, domain.StatusDrafting)

		var out activities.GenerateDraftOutput
		res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseDraft), &p.retry, func() error {
			return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityGenerateDraft),
				generationAct.GenerateDraft, activities.GenerateDraftInput{
					Topic:           req.Topic,
					Brief:           *p.state.Brief,
					Sources:         UsableSources(p.state),
					TargetWordCount: req.TargetWordCount,
					Profile:         p.input.Profile,
					Feedback:        feedback,
					Attempt:         attempt,
				}).Get(ctx, &out)
		})
		if !res.OK() {
			return false, p.stageError(resilience.PhaseDraft, resilience.ActivityGenerateDraft, res)
		}
		p.advance(DraftGenerated{Draft: out.Draft})

		wordCount := p.state.Draft.WordCount
		if !domain.WithinTolerance(wordCount, req.TargetWordCount, settings.WordCountTolerance) {
			if !last {
				p.logger.Info("draft outside word-count tolerance, regenerating",
					"attempt", attempt, "wordCount", wordCount, "target", req.TargetWordCount)
				feedback = quality.WordCountFeedback(req.TargetWordCount)
				continue
			}
			p.logger.Warn("regeneration budget exhausted, accepting draft as best effort",
				"wordCount", wordCount, "target", req.TargetWordCount)
			p.advance(DraftAcceptedBestEffort{})
		}

		p.setStatus(ctx, domain.StatusQualityCheck)
		breakdown := quality.Score(*p.state.Draft, req, p.input.Profile, settings.Quality, settings.WordCountTolerance)
		p.advance(QualityScored{Score: breakdown.Score})
		if breakdown.Gate(p.input.Profile.PublishThreshold) {
			p.logger.Info("draft passed quality gate", "attempt", attempt, "score", breakdown.Score)
			return true, nil
		}

		p.logger.Info("draft below quality threshold",
			"attempt", attempt,
			"score", breakdown.Score,
			"threshold", p.input.Profile.PublishThreshold,
			"weakest", breakdown.Weakest(),
		)
		feedback = breakdown.Feedback(req.TargetWordCount)
	}
	return false, nil
}

// images generates the featured, hero and content images in order. Each
// image after the first successful one is generated with the previous
// image as context. Failed roles are skipped.
func (p *pipeline) images(ctx workflow.Context) *domain.PipelineError {
	if p.input.Request.Flags.SkipImages {
		return nil
	}
	p.setStatus(ctx, domain.StatusImaging)

	title := p.state.Draft.Title
	angle := p.state.Brief.Angle
	for _, role := range domain.ImageRoles(p.input.Profile.ContentImageCount) {
		in := activities.GenerateImageInput{
			Prompt: imagegen.Prompt(title, angle, p.input.Profile.ImageStyle, role),
			Role:   role,
		}
		prev, hasPrev := LastImage(p.state)
		if hasPrev {
			in.ContextURL = prev.URL
		}

		var out activities.GenerateImageOutput
		res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseImage), &p.retry, func() error {
			return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityGenerateImage),
				imageAct.GenerateImage, in).Get(ctx, &out)
		})
		if res.Failed {
			return p.stageError(resilience.PhaseImage, resilience.ActivityGenerateImage, res)
		}
		if !res.OK() {
			p.logger.Warn("image skipped", "role", role, "error", res.Err)
			p.advance(ImageSkipped{Role: role})
			continue
		}

		img := domain.GeneratedImage{
			ID:      imageID(p.workflowID, role),
			URL:     out.URL,
			AltText: imagegen.AltText(title, role),
			Role:    role,
		}
		if hasPrev {
			img.ContextImageID = prev.ID
		}
		p.advance(ImageGenerated{Image: img})
	}
	return nil
}

// persist stores the current draft under the workflow ID so a retried or
// replayed run never creates a second article.
func (p *pipeline) persist(ctx workflow.Context, status domain.ArticleStatus) *domain.PipelineError {
	p.setStatus(ctx, domain.StatusPersisting)

	in := activities.PersistArticleInput{
		IdempotencyKey: p.workflowID,
		Request:        p.input.Request,
		Draft:          *p.state.Draft,
		Images:         p.state.Images,
		Status:         status,
		Citations:      p.state.Draft.CitationsUsed,
	}
	if p.state.QualityScore != nil {
		in.QualityScore = *p.state.QualityScore
	}
	if p.state.Brief != nil {
		in.Entities = p.state.Brief.Entities
	}

	var out activities.PersistArticleOutput
	res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhasePersist), &p.retry, func() error {
		return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityPersistArticle),
			persistenceAct.PersistArticle, in).Get(ctx, &out)
	})
	if !res.OK() {
		perr := p.stageError(resilience.PhasePersist, resilience.ActivityPersistArticle, res)
		if perr.Kind != domain.KindCancelled {
			perr.Kind = domain.KindPersistenceFailed
		}
		return perr
	}

	p.advance(ArticlePersisted{ArticleID: out.ArticleID})
	p.logger.Info("article persisted", "articleID", out.ArticleID, "status", status, "created", out.Created)
	return nil
}

// syncGraph pushes the article's entities to the knowledge graph. A failed
// sync marks the result partial and the run still publishes.
func (p *pipeline) syncGraph(ctx workflow.Context) *domain.PipelineError {
	if p.input.Request.Flags.SkipGraphSync {
		return nil
	}
	p.setStatus(ctx, domain.StatusSyncing)

	res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseGraphSync), &p.retry, func() error {
		return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivitySyncToGraph),
			graphAct.SyncToGraph, activities.SyncToGraphInput{
				ArticleID: p.state.PersistedID,
				App:       p.input.Request.App,
				Title:     p.state.Draft.Title,
				Entities:  p.state.Brief.Entities,
			}).Get(ctx, nil)
	})
	if res.Failed {
		return p.stageError(resilience.PhaseGraphSync, resilience.ActivitySyncToGraph, res)
	}
	if !res.OK() {
		p.logger.Warn("graph sync failed, publishing with partial sync", "error", res.Err)
	}
	p.advance(GraphSynced{Partial: !res.OK()})
	return nil
}

func (p *pipeline) published(ctx workflow.Context) *domain.WorkflowResult {
	p.setStatus(ctx, domain.StatusPublished)
	p.publishRunEvent(ctx, "", "")

	result := Result(p.workflowID, p.state)
	result.ReviewRequired = !p.input.Request.AutoPublish
	p.logger.Info("article pipeline completed",
		"articleID", p.state.PersistedID,
		"reviewRequired", result.ReviewRequired,
		"syncPartial", p.state.SyncPartial,
	)
	return result
}

// rejected persists the last draft with status rejected and ends the run.
func (p *pipeline) rejected(ctx workflow.Context) *domain.WorkflowResult {
	if perr := p.persist(ctx, domain.ArticleRejected); perr != nil {
		return p.failed(ctx, perr)
	}
	p.setStatus(ctx, domain.StatusRejected)
	p.publishRunEvent(ctx, "", "")

	result := Result(p.workflowID, p.state)
	result.RejectionReason = domain.RejectionLowQualityScore
	p.logger.Info("article rejected by quality gate",
		"articleID", p.state.PersistedID,
		"attempts", p.state.DraftAttempts,
	)
	return result
}

// failed records the FAILED terminal state. It returns nil when ctx was
// cancelled, leaving the outcome to the interruption handling.
func (p *pipeline) failed(ctx workflow.Context, perr *domain.PipelineError) *domain.WorkflowResult {
	if ctx.Err() != nil {
		return nil
	}
	p.logger.Error("article pipeline failed", "kind", perr.Kind, "error", perr.Message)

	p.advance(StatusChanged{Status: domain.StatusFailed})
	p.recordStatus(ctx, perr.Kind, perr.Message)
	p.publishRunEvent(ctx, perr.Kind, perr.Message)

	result := FailedResult(p.workflowID, p.state, perr.Kind, perr.Message)
	if perr.Kind == domain.KindInsufficientResearch {
		result.RejectionReason = domain.RejectionInsufficientResearch
	}
	return result
}

// interrupted handles a run whose context was cancelled before it reached a
// terminal state. Bookkeeping runs on a disconnected context.
func (p *pipeline) interrupted(ctx workflow.Context) (*domain.WorkflowResult, error) {
	dCtx, _ := workflow.NewDisconnectedContext(ctx)

	if p.deadlineExceeded {
		msg := fmt.Sprintf("run exceeded its %s deadline", p.input.Deadline)
		return p.failed(dCtx, domain.NewPipelineError(domain.KindTimeout, msg)), nil
	}

	reason := p.cancelReason
	if reason == "" {
		reason = defaultCancelReason
	}
	p.logger.Info("article pipeline cancelled", "status", p.state.Status, "reason", reason)

	p.advance(StatusChanged{Status: domain.StatusCancelled})
	p.recordStatus(dCtx, domain.KindCancelled, reason)
	p.publishRunEvent(dCtx, domain.KindCancelled, reason)
	return nil, temporal.NewCanceledError(reason)
}

// setStatus advances the lifecycle status and records it. Repeated statuses
// are not recorded twice.
func (p *pipeline) setStatus(ctx workflow.Context, status domain.PipelineStatus) {
	if p.state.Status == status {
		return
	}
	p.advance(StatusChanged{Status: status})
	p.recordStatus(ctx, "", "")
}

func (p *pipeline) recordStatus(ctx workflow.Context, kind domain.ErrorKind, message string) {
	in := activities.UpdateRunStatusInput{
		WorkflowID:   p.workflowID,
		RunID:        p.runID,
		App:          p.input.Request.App,
		Topic:        p.input.Request.Topic,
		Status:       p.state.Status,
		ErrorKind:    kind,
		ErrorMessage: message,
		ArticleID:    p.state.PersistedID,
		StartedAt:    p.startedAt,
	}
	res := resilience.ExecutePhase(ctx, resilience.PhaseFor(resilience.PhaseStatus), nil, func() error {
		return workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityUpdateRunStatus),
			statusAct.UpdateRunStatus, in).Get(ctx, nil)
	})
	if !res.OK() {
		p.logger.Warn("run status update skipped", "status", in.Status, "error", res.Err)
	}
}

// publishRunEvent is fire-and-forget: a failed publish is logged only.
func (p *pipeline) publishRunEvent(ctx workflow.Context, kind domain.ErrorKind, message string) {
	err := workflow.ExecuteActivity(resilience.WithOptions(ctx, resilience.ActivityPublishEvent),
		eventAct.PublishEvent, activities.PublishEventInput{
			App: p.input.Request.App,
			Run: domain.RunFinishedPayload{
				WorkflowID:  p.workflowID,
				Status:      p.state.Status,
				ArticleID:   p.state.PersistedID,
				ErrorKind:   kind,
				Error:       message,
				SyncPartial: p.state.SyncPartial,
			},
		}).Get(ctx, nil)
	if err != nil {
		p.logger.Warn("run event not published", "status", p.state.Status, "error", err)
	}
}

func (p *pipeline) advance(r StageResult) {
	p.state = Advance(p.state, r)
}

func (p *pipeline) snapshot() PipelineProgress {
	s := p.state
	out := PipelineProgress{
		Status:          s.Status,
		SourcesFound:    len(s.Sources),
		UsableSources:   s.UsableSourceCount(),
		ResearchRetried: p.researchRetried,
		DraftAttempts:   s.DraftAttempts,
		ImagesGenerated: len(s.Images),
		ImagesSkipped:   append([]string(nil), s.ImagesSkipped...),
		ArticleID:       s.PersistedID,
		SyncPartial:     s.SyncPartial,
		Progress:        p.retry,
	}
	if s.QualityScore != nil {
		score := *s.QualityScore
		out.QualityScore = &score
	}
	return out
}

// stageError turns a failed phase into the PipelineError callers see. The
// provider error text is logged here and nowhere else.
func (p *pipeline) stageError(phase, activity string, res resilience.PhaseResult) *domain.PipelineError {
	kind := resilience.KindOf(res.Err)
	p.logger.Error("pipeline stage failed", "phase", phase, "kind", kind, "error", res.Err)
	return domain.NewPipelineError(kind, resilience.Describe(phase, activity, res))
}

func imageID(workflowID, role string) string {
	return uuid.NewSHA1(imageNamespace, []byte(workflowID+"/"+role)).String()
}
