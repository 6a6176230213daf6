package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsroom/content-pipeline/internal/domain"
)

func testProfile() domain.AppProfile {
	return domain.AppProfile{
		Name:             "relocation",
		PublishThreshold: 0.7,
		RequiredSections: []string{"Overview", "Requirements", "Conclusion"},
	}
}

func testRequest() domain.WorkflowRequest {
	return domain.WorkflowRequest{
		Topic:           "Digital Nomad Visa Portugal",
		App:             "relocation",
		TargetWordCount: 1500,
		SourceCount:     5,
	}
}

func bodyWithSections(sections ...string) string {
	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString("## ")
		sb.WriteString(s)
		sb.WriteString("\n\nSome paragraph text.\n\n")
	}
	return sb.String()
}

func TestScore_PerfectDraft(t *testing.T) {
	draft := domain.ArticleDraft{
		BodyMarkdown:  bodyWithSections("Overview", "Requirements", "Conclusion"),
		WordCount:     1500,
		CitationsUsed: []string{"S1", "S2", "S3", "S4", "S5"},
	}

	b := Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15)

	assert.Equal(t, 1.0, b.CitationDensity)
	assert.Equal(t, 1.0, b.WordCountAdherence)
	assert.Equal(t, 1.0, b.StructuralCompleteness)
	assert.Equal(t, 1.0, b.Score)
	assert.Empty(t, b.MissingSections)
	assert.True(t, b.Gate(0.7))
}

func TestScore_ZeroCitationsNeverPasses(t *testing.T) {
	draft := domain.ArticleDraft{
		BodyMarkdown: bodyWithSections("Overview", "Requirements", "Conclusion"),
		WordCount:    1500,
	}

	b := Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15)

	assert.Equal(t, 0.0, b.CitationDensity)
	assert.Equal(t, 0.6, b.Score)
	assert.False(t, b.Gate(0.5))
	assert.Equal(t, DimensionCitationDensity, b.Weakest())
}

func TestScore_DuplicateCitationsCountOnce(t *testing.T) {
	draft := domain.ArticleDraft{
		BodyMarkdown:  bodyWithSections("Overview", "Requirements", "Conclusion"),
		WordCount:     1000,
		CitationsUsed: []string{"S1", "S1", "S1"},
	}

	b := Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15)
	assert.Equal(t, 1, b.Citations)
}

func TestScore_WordCountAdherence(t *testing.T) {
	tests := []struct {
		name      string
		wordCount int
		expected  float64
	}{
		{"on target", 1500, 1},
		{"at tolerance edge", 1725, 1},
		{"halfway to double tolerance", 1837, 0.5},
		{"double tolerance", 1950, 0},
		{"far below", 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wordCountAdherence(tt.wordCount, 1500, 0.15)
			assert.InDelta(t, tt.expected, got, 0.01)
		})
	}
}

func TestScore_StructuralCompleteness(t *testing.T) {
	draft := domain.ArticleDraft{
		BodyMarkdown:  "# Portugal D8\n\n## overview of the visa\n\ntext\n\n### Key requirements\n",
		WordCount:     1500,
		CitationsUsed: []string{"S1", "S2", "S3", "S4", "S5"},
	}

	b := Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15)

	assert.InDelta(t, 2.0/3.0, b.StructuralCompleteness, 1e-9)
	assert.Equal(t, []string{"Conclusion"}, b.MissingSections)
	assert.Equal(t, DimensionStructuralCompleteness, b.Weakest())
	assert.Contains(t, b.Feedback(1500), "Conclusion")
}

func TestScore_NoRequiredSections(t *testing.T) {
	profile := testProfile()
	profile.RequiredSections = nil
	draft := domain.ArticleDraft{BodyMarkdown: "plain", WordCount: 1500, CitationsUsed: []string{"S1"}}

	b := Score(draft, testRequest(), profile, domain.DefaultQualityWeights(), 0.15)
	assert.Equal(t, 1.0, b.StructuralCompleteness)
}

func TestScore_IsDeterministic(t *testing.T) {
	draft := domain.ArticleDraft{
		BodyMarkdown:  bodyWithSections("Overview"),
		WordCount:     1300,
		CitationsUsed: []string{"S1", "S2"},
	}

	first := Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(draft, testRequest(), testProfile(), domain.DefaultQualityWeights(), 0.15))
	}
}

func TestPasses_BoundaryIsInclusive(t *testing.T) {
	assert.True(t, Passes(0.7, 0.7))
	assert.True(t, Passes(0.701, 0.7))
	assert.False(t, Passes(0.699, 0.7))
	assert.True(t, Passes(0.4+0.3, 0.7))
}

func TestBreakdown_Weakest(t *testing.T) {
	tests := []struct {
		name     string
		b        Breakdown
		expected Dimension
	}{
		{"citations lowest", Breakdown{CitationDensity: 0.1, WordCountAdherence: 0.5, StructuralCompleteness: 0.9}, DimensionCitationDensity},
		{"word count lowest", Breakdown{CitationDensity: 0.8, WordCountAdherence: 0.2, StructuralCompleteness: 0.9}, DimensionWordCountAdherence},
		{"structure lowest", Breakdown{CitationDensity: 0.8, WordCountAdherence: 0.9, StructuralCompleteness: 0.3}, DimensionStructuralCompleteness},
		{"tie resolves in order", Breakdown{CitationDensity: 0.5, WordCountAdherence: 0.5, StructuralCompleteness: 0.5}, DimensionCitationDensity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.b.Weakest())
		})
	}
}

func TestWordCountFeedback(t *testing.T) {
	assert.Equal(t, "word_count: the article must be close to 1500 words", WordCountFeedback(1500))
}
