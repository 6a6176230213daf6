// Package quality implements the deterministic quality gate applied to article
// drafts. Scoring is a pure function of the draft, the request and the app
// profile so that workflow replays always reach the same decision.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Dimension names a scored aspect of a draft.
type Dimension string

const (
	DimensionCitationDensity        Dimension = "citation_density"
	DimensionWordCountAdherence     Dimension = "word_count_adherence"
	DimensionStructuralCompleteness Dimension = "structural_completeness"

	// DimensionWordCount is used as feedback when a draft misses the word-count tolerance.
	DimensionWordCount Dimension = "word_count"
)

// scoreEpsilon absorbs float error when comparing a rounded score to a threshold.
const scoreEpsilon = 1e-9

// Breakdown is the per-dimension result of scoring a draft.
type Breakdown struct {
	CitationDensity        float64  `json:"citation_density"`
	WordCountAdherence     float64  `json:"word_count_adherence"`
	StructuralCompleteness float64  `json:"structural_completeness"`
	Score                  float64  `json:"score"`
	Citations              int      `json:"citations"`
	MissingSections        []string `json:"missing_sections,omitempty"`
}

// Score computes the quality breakdown of a draft.
func Score(draft domain.ArticleDraft, req domain.WorkflowRequest, profile domain.AppProfile, weights domain.QualityWeights, tolerance float64) Breakdown {
	wordCount := draft.WordCount
	if wordCount == 0 {
		wordCount = domain.CountWords(draft.BodyMarkdown)
	}
	citations := len(distinct(draft.CitationsUsed))

	b := Breakdown{
		CitationDensity:    citationDensity(citations, wordCount, weights.TargetCitationsPer500),
		WordCountAdherence: wordCountAdherence(wordCount, req.TargetWordCount, tolerance),
		Citations:          citations,
	}
	b.StructuralCompleteness, b.MissingSections = structuralCompleteness(draft.BodyMarkdown, profile.RequiredSections)

	total := weights.CitationDensity + weights.WordCountAdherence + weights.StructuralCompleteness
	if total <= 0 {
		weights = domain.DefaultQualityWeights()
		total = 1
	}
	raw := (weights.CitationDensity*b.CitationDensity +
		weights.WordCountAdherence*b.WordCountAdherence +
		weights.StructuralCompleteness*b.StructuralCompleteness) / total
	b.Score = round3(raw)
	return b
}

// Passes reports whether score meets threshold. The threshold is inclusive.
func Passes(score, threshold float64) bool {
	return score+scoreEpsilon >= threshold
}

// Gate reports whether the draft may proceed to publication. A draft without
// citations never passes regardless of its score.
func (b Breakdown) Gate(threshold float64) bool {
	return b.Citations > 0 && Passes(b.Score, threshold)
}

// Weakest returns the lowest-scoring dimension. Ties resolve in declaration order.
func (b Breakdown) Weakest() Dimension {
	weakest := DimensionCitationDensity
	lowest := b.CitationDensity
	if b.WordCountAdherence < lowest {
		weakest, lowest = DimensionWordCountAdherence, b.WordCountAdherence
	}
	if b.StructuralCompleteness < lowest {
		weakest = DimensionStructuralCompleteness
	}
	return weakest
}

// Feedback renders the regeneration hint for the weakest dimension.
func (b Breakdown) Feedback(targetWordCount int) string {
	switch b.Weakest() {
	case DimensionWordCountAdherence:
		return WordCountFeedback(targetWordCount)
	case DimensionStructuralCompleteness:
		if len(b.MissingSections) > 0 {
			return fmt.Sprintf("%s: add the missing sections as markdown headings: %s",
				DimensionStructuralCompleteness, strings.Join(b.MissingSections, ", "))
		}
		return fmt.Sprintf("%s: organise the article under clear markdown headings", DimensionStructuralCompleteness)
	default:
		return fmt.Sprintf("%s: cite more of the research sources inline using their [S#] identifiers (found %d)",
			DimensionCitationDensity, b.Citations)
	}
}

// WordCountFeedback is the hint sent when a draft misses the word-count tolerance.
func WordCountFeedback(targetWordCount int) string {
	return fmt.Sprintf("%s: the article must be close to %d words", DimensionWordCount, targetWordCount)
}

func citationDensity(citations, wordCount int, targetPer500 float64) float64 {
	if citations == 0 || wordCount == 0 {
		return 0
	}
	if targetPer500 <= 0 {
		targetPer500 = domain.DefaultQualityWeights().TargetCitationsPer500
	}
	per500 := float64(citations) / (float64(wordCount) / 500)
	return math.Min(1, per500/targetPer500)
}

// wordCountAdherence is 1 inside the tolerance band and decays linearly to 0
// at twice the tolerance.
func wordCountAdherence(wordCount, target int, tolerance float64) float64 {
	if target <= 0 {
		return 1
	}
	if domain.WithinTolerance(wordCount, target, tolerance) {
		return 1
	}
	if tolerance <= 0 {
		return 0
	}
	deviation := math.Abs(float64(wordCount-target)) / float64(target)
	return math.Max(0, 1-(deviation-tolerance)/tolerance)
}

func structuralCompleteness(body string, required []string) (float64, []string) {
	if len(required) == 0 {
		return 1, nil
	}

	headings := markdownHeadings(body)
	var missing []string
	for _, section := range required {
		if !containsHeading(headings, section) {
			missing = append(missing, section)
		}
	}
	found := len(required) - len(missing)
	return float64(found) / float64(len(required)), missing
}

func markdownHeadings(body string) []string {
	var headings []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		text := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if text != "" {
			headings = append(headings, strings.ToLower(text))
		}
	}
	return headings
}

func containsHeading(headings []string, section string) bool {
	want := strings.ToLower(strings.TrimSpace(section))
	for _, h := range headings {
		if strings.Contains(h, want) {
			return true
		}
	}
	return false
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
