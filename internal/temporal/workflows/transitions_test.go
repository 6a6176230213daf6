package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/domain"
)

func newTestState() domain.PipelineState {
	return NewState(ArticlePipelineInput{
		Request:  domain.WorkflowRequest{Topic: "heat pumps", App: "newsroom", TargetWordCount: 600, SourceCount: 5},
		Profile:  domain.AppProfile{Name: "newsroom", PublishThreshold: 0.6},
		Settings: domain.DefaultPipelineSettings(),
	})
}

func TestNewState(t *testing.T) {
	s := newTestState()
	assert.Equal(t, domain.StatusStarted, s.Status)
	assert.Empty(t, s.Sources)
	assert.Nil(t, s.Draft)
	assert.Zero(t, s.DraftAttempts)
}

func TestAdvance_DoesNotModifyInput(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "alpha"},
	}})

	next := Advance(s, PagesCrawled{Pages: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "alpha beta gamma"},
	}})
	next = Advance(next, ImageGenerated{Image: domain.GeneratedImage{ID: "i1", Role: domain.RoleFeatured}})

	assert.Equal(t, "alpha", s.Sources[0].ExtractedText)
	assert.Empty(t, s.Images)
	assert.Equal(t, "alpha beta gamma", next.Sources[0].ExtractedText)
	assert.Len(t, next.Images, 1)
}

func TestResearchGathered(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{ID: "n-1", URL: "https://a.example/1", ExtractedText: "one", Provider: domain.ProviderNewsSearch},
		{ID: "n-2", URL: "https://a.example/2/", ExtractedText: "two", Provider: domain.ProviderNewsSearch},
		{ID: "d-1", URL: "HTTPS://A.EXAMPLE/2", ExtractedText: "dup", Provider: domain.ProviderDeepResearch},
		{ID: "d-2", URL: "", ExtractedText: "", Provider: domain.ProviderDeepResearch},
	}})

	require.Len(t, s.Sources, 3)
	assert.Equal(t, []string{"S1", "S2", "S3"}, []string{s.Sources[0].ID, s.Sources[1].ID, s.Sources[2].ID})
	assert.Equal(t, "two", s.Sources[1].ExtractedText)
	assert.Equal(t, 2, s.UsableSourceCount())

	s = Advance(s, ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "again"},
		{URL: "https://b.example/3", ExtractedText: "three"},
	}})
	require.Len(t, s.Sources, 4)
	assert.Equal(t, "one", s.Sources[0].ExtractedText)
	assert.Equal(t, "S4", s.Sources[3].ID)
	assert.Equal(t, "https://b.example/3", s.Sources[3].URL)
}

func TestPagesCrawled(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", Title: "One", ExtractedText: "short snippet", Provider: domain.ProviderNewsSearch},
		{URL: "https://a.example/2", ExtractedText: "a longer existing snippet here", Provider: domain.ProviderNewsSearch},
	}})

	s = Advance(s, PagesCrawled{Pages: []domain.Source{
		{URL: "https://a.example/1", Title: "Page", ExtractedText: "the full text of the first page"},
		{URL: "https://a.example/2", ExtractedText: "short"},
		{URL: "https://c.example/9", ExtractedText: "new page", Provider: domain.ProviderCrawl},
	}})

	require.Len(t, s.Sources, 3)
	assert.Equal(t, "the full text of the first page", s.Sources[0].ExtractedText)
	assert.Equal(t, "One", s.Sources[0].Title)
	assert.Equal(t, domain.ProviderCrawl, s.Sources[0].Provider)
	assert.Equal(t, "a longer existing snippet here", s.Sources[1].ExtractedText)
	assert.Equal(t, domain.ProviderNewsSearch, s.Sources[1].Provider)
	assert.Equal(t, "S3", s.Sources[2].ID)
}

func TestBriefExtracted(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "one"},
		{URL: "https://a.example/2", ExtractedText: "two"},
	}})

	s = Advance(s, BriefExtracted{Brief: domain.ResearchBrief{
		Angle:    "costs are falling",
		Entities: []string{"IEA", "EU", "IEA"},
		Citations: []domain.Citation{
			{SourceID: "S1", Claim: "a"},
			{SourceID: "S7", Claim: "invented"},
			{SourceID: "S2", Claim: "b"},
		},
	}})

	require.NotNil(t, s.Brief)
	assert.Equal(t, []string{"IEA", "EU"}, s.Brief.Entities)
	assert.Equal(t, []string{"S1", "S2"}, s.Brief.CitedSourceIDs())
	assert.Equal(t, "costs are falling", s.Brief.Angle)
}

func TestDraftGenerated(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "one"},
		{URL: "https://a.example/2", ExtractedText: "two"},
	}})
	s = Advance(s, BriefExtracted{Brief: domain.ResearchBrief{
		Citations: []domain.Citation{{SourceID: "S1"}},
	}})
	s = Advance(s, QualityScored{Score: 0.4})

	s = Advance(s, DraftGenerated{Draft: domain.ArticleDraft{
		Title:         "T",
		BodyMarkdown:  "## Heading\n\none two three",
		WordCount:     999,
		CitationsUsed: []string{"S1", "S2", "S1", "S9"},
		Attempt:       7,
	}})

	require.NotNil(t, s.Draft)
	assert.Equal(t, 4, s.Draft.WordCount)
	assert.Equal(t, []string{"S1"}, s.Draft.CitationsUsed)
	assert.Equal(t, 1, s.Draft.Attempt)
	assert.Equal(t, 1, s.DraftAttempts)
	assert.Nil(t, s.QualityScore, "score of the replaced draft is cleared")

	s = Advance(s, DraftGenerated{Draft: domain.ArticleDraft{BodyMarkdown: "x"}})
	assert.Equal(t, 2, s.DraftAttempts)
	assert.Equal(t, 2, s.Draft.Attempt)
	assert.False(t, s.Draft.BestEffort)

	s = Advance(s, DraftAcceptedBestEffort{})
	assert.True(t, s.Draft.BestEffort)
}

func TestImagesAndPersistence(t *testing.T) {
	s := newTestState()
	_, ok := LastImage(s)
	assert.False(t, ok)

	s = Advance(s, ImageGenerated{Image: domain.GeneratedImage{ID: "f", Role: domain.RoleFeatured}})
	s = Advance(s, ImageSkipped{Role: domain.RoleHero})
	s = Advance(s, ImageGenerated{Image: domain.GeneratedImage{ID: "c1", Role: "content-1", ContextImageID: "f"}})

	last, ok := LastImage(s)
	require.True(t, ok)
	assert.Equal(t, "c1", last.ID)
	assert.Equal(t, []string{domain.RoleHero}, s.ImagesSkipped)

	s = Advance(s, ArticlePersisted{ArticleID: "art-1"})
	s = Advance(s, GraphSynced{Partial: true})
	s = Advance(s, StatusChanged{Status: domain.StatusPublished})

	res := Result("wf-1", s)
	assert.Equal(t, "wf-1", res.WorkflowID)
	assert.Equal(t, domain.StatusPublished, res.Status)
	assert.Equal(t, "art-1", res.PersistedID)
	assert.True(t, res.SyncPartial)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, []string{domain.RoleHero}, res.ImagesSkipped)
	assert.Nil(t, res.Error)
}

func TestFailedResult(t *testing.T) {
	s := Advance(newTestState(), StatusChanged{Status: domain.StatusBriefing})

	res := FailedResult("wf-2", s, domain.KindGenerationParseError, "bad json")
	assert.Equal(t, domain.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.KindGenerationParseError, res.Error.Kind)
	assert.Equal(t, "bad json", res.Error.Message)
	assert.Empty(t, res.Images)
	assert.Equal(t, domain.StatusBriefing, s.Status)
}

func TestUsableSources(t *testing.T) {
	s := Advance(newTestState(), ResearchGathered{Sources: []domain.Source{
		{URL: "https://a.example/1", ExtractedText: "text"},
		{URL: "https://a.example/2", ExtractedText: "  "},
		{URL: "https://a.example/3", ExtractedText: "more text"},
	}})

	usable := UsableSources(s)
	require.Len(t, usable, 2)
	assert.Equal(t, "S1", usable[0].ID)
	assert.Equal(t, "S3", usable[1].ID)
}
