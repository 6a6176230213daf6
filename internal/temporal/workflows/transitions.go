package workflows

import (
	"strconv"
	"strings"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// StageResult is the output of one pipeline stage. Applying it to a state
// yields the next state; the input state is never modified.
type StageResult interface {
	apply(s domain.PipelineState) domain.PipelineState
}

// Advance returns the state that follows s once r is applied.
func Advance(s domain.PipelineState, r StageResult) domain.PipelineState {
	return r.apply(clone(s))
}

// NewState returns the initial state of a run.
func NewState(input ArticlePipelineInput) domain.PipelineState {
	return domain.PipelineState{
		Request:  input.Request,
		Profile:  input.Profile,
		Settings: input.Settings,
		Sources:  []domain.Source{},
		Images:   []domain.GeneratedImage{},
		Status:   domain.StatusStarted,
	}
}

// StatusChanged moves the run to a new lifecycle status.
type StatusChanged struct {
	Status domain.PipelineStatus
}

func (r StatusChanged) apply(s domain.PipelineState) domain.PipelineState {
	s.Status = r.Status
	return s
}

// ResearchGathered merges newly found sources into the state. Sources are
// deduplicated by URL and numbered S1..Sn in the order they were first seen.
type ResearchGathered struct {
	Sources []domain.Source
}

func (r ResearchGathered) apply(s domain.PipelineState) domain.PipelineState {
	s.Sources = mergeSources(s.Sources, r.Sources)
	return s
}

// PagesCrawled replaces the text of known sources with the full page text
// when the crawl returned more of it. Pages for unknown URLs are appended.
type PagesCrawled struct {
	Pages []domain.Source
}

func (r PagesCrawled) apply(s domain.PipelineState) domain.PipelineState {
	index := make(map[string]int, len(s.Sources))
	for i, src := range s.Sources {
		if key := urlKey(src.URL); key != "" {
			index[key] = i
		}
	}
	var extra []domain.Source
	for _, page := range r.Pages {
		i, ok := index[urlKey(page.URL)]
		if !ok {
			extra = append(extra, page)
			continue
		}
		if domain.CountWords(page.ExtractedText) <= domain.CountWords(s.Sources[i].ExtractedText) {
			continue
		}
		s.Sources[i].ExtractedText = page.ExtractedText
		s.Sources[i].Provider = domain.ProviderCrawl
		if s.Sources[i].Title == "" {
			s.Sources[i].Title = page.Title
		}
	}
	s.Sources = mergeSources(s.Sources, extra)
	return s
}

// BriefExtracted records the research brief. Citations that point at unknown
// sources are dropped and entities are deduplicated.
type BriefExtracted struct {
	Brief domain.ResearchBrief
}

func (r BriefExtracted) apply(s domain.PipelineState) domain.PipelineState {
	known := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		known[src.ID] = true
	}
	brief := domain.ResearchBrief{
		Angle:     r.Brief.Angle,
		Entities:  DeduplicateStrings(r.Brief.Entities),
		Citations: make([]domain.Citation, 0, len(r.Brief.Citations)),
	}
	for _, c := range r.Brief.Citations {
		if known[c.SourceID] {
			brief.Citations = append(brief.Citations, c)
		}
	}
	s.Brief = &brief
	return s
}

// DraftGenerated replaces the current draft. The word count is recomputed
// from the body and citations outside the brief are dropped. Any previous
// quality score belongs to the replaced draft and is cleared.
type DraftGenerated struct {
	Draft domain.ArticleDraft
}

func (r DraftGenerated) apply(s domain.PipelineState) domain.PipelineState {
	d := r.Draft
	d.WordCount = domain.CountWords(d.BodyMarkdown)

	cited := make(map[string]bool)
	if s.Brief != nil {
		for _, id := range s.Brief.CitedSourceIDs() {
			cited[id] = true
		}
	}
	used := make([]string, 0, len(d.CitationsUsed))
	for _, id := range DeduplicateStrings(d.CitationsUsed) {
		if cited[id] {
			used = append(used, id)
		}
	}
	d.CitationsUsed = used

	s.DraftAttempts++
	d.Attempt = s.DraftAttempts
	s.Draft = &d
	s.QualityScore = nil
	return s
}

// DraftAcceptedBestEffort marks the current draft as accepted despite
// missing the word-count tolerance.
type DraftAcceptedBestEffort struct{}

func (DraftAcceptedBestEffort) apply(s domain.PipelineState) domain.PipelineState {
	if s.Draft != nil {
		d := *s.Draft
		d.BestEffort = true
		s.Draft = &d
	}
	return s
}

// QualityScored records the quality score of the current draft.
type QualityScored struct {
	Score float64
}

func (r QualityScored) apply(s domain.PipelineState) domain.PipelineState {
	score := r.Score
	s.QualityScore = &score
	return s
}

// ImageGenerated appends a generated image.
type ImageGenerated struct {
	Image domain.GeneratedImage
}

func (r ImageGenerated) apply(s domain.PipelineState) domain.PipelineState {
	s.Images = append(s.Images, r.Image)
	return s
}

// ImageSkipped records a role whose image could not be generated.
type ImageSkipped struct {
	Role string
}

func (r ImageSkipped) apply(s domain.PipelineState) domain.PipelineState {
	s.ImagesSkipped = append(s.ImagesSkipped, r.Role)
	return s
}

// ArticlePersisted records the ID of the stored article.
type ArticlePersisted struct {
	ArticleID string
}

func (r ArticlePersisted) apply(s domain.PipelineState) domain.PipelineState {
	s.PersistedID = r.ArticleID
	return s
}

// GraphSynced records the outcome of the knowledge-graph sync.
type GraphSynced struct {
	Partial bool
}

func (r GraphSynced) apply(s domain.PipelineState) domain.PipelineState {
	s.SyncPartial = r.Partial
	return s
}

// LastImage returns the most recently generated image, if any.
func LastImage(s domain.PipelineState) (domain.GeneratedImage, bool) {
	if len(s.Images) == 0 {
		return domain.GeneratedImage{}, false
	}
	return s.Images[len(s.Images)-1], true
}

// UsableSources returns the sources that carry extracted text.
func UsableSources(s domain.PipelineState) []domain.Source {
	out := make([]domain.Source, 0, len(s.Sources))
	for _, src := range s.Sources {
		if src.Usable() {
			out = append(out, src)
		}
	}
	return out
}

// Result builds the terminal result of a run from its final state.
func Result(workflowID string, s domain.PipelineState) *domain.WorkflowResult {
	s = clone(s)
	res := &domain.WorkflowResult{
		WorkflowID:    workflowID,
		Status:        s.Status,
		PersistedID:   s.PersistedID,
		QualityScore:  s.QualityScore,
		Draft:         s.Draft,
		SyncPartial:   s.SyncPartial,
		ImagesSkipped: s.ImagesSkipped,
		DraftAttempts: s.DraftAttempts,
	}
	if len(s.Images) > 0 {
		res.Images = s.Images
	}
	return res
}

// FailedResult builds a FAILED result carrying kind and message.
func FailedResult(workflowID string, s domain.PipelineState, kind domain.ErrorKind, message string) *domain.WorkflowResult {
	s.Status = domain.StatusFailed
	res := Result(workflowID, s)
	res.Error = domain.NewPipelineError(kind, message)
	return res
}

func mergeSources(existing, incoming []domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	add := func(src domain.Source) {
		if key := urlKey(src.URL); key != "" {
			if seen[key] {
				return
			}
			seen[key] = true
		}
		src.ID = "S" + strconv.Itoa(len(out)+1)
		out = append(out, src)
	}
	for _, src := range existing {
		add(src)
	}
	for _, src := range incoming {
		add(src)
	}
	return out
}

func urlKey(u string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(u), "/"))
}

func clone(s domain.PipelineState) domain.PipelineState {
	s.Sources = append([]domain.Source(nil), s.Sources...)
	s.Images = append([]domain.GeneratedImage(nil), s.Images...)
	s.ImagesSkipped = append([]string(nil), s.ImagesSkipped...)
	if s.Brief != nil {
		b := *s.Brief
		b.Entities = append([]string(nil), b.Entities...)
		b.Citations = append([]domain.Citation(nil), b.Citations...)
		s.Brief = &b
	}
	if s.Draft != nil {
		d := *s.Draft
		d.CitationsUsed = append([]string(nil), d.CitationsUsed...)
		s.Draft = &d
	}
	if s.QualityScore != nil {
		q := *s.QualityScore
		s.QualityScore = &q
	}
	return s
}
