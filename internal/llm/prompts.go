package llm

import (
	"fmt"
	"strings"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// maxSourceChars bounds the text of each source included in the brief prompt.
const maxSourceChars = 6000

const briefSchema = `{
  "type": "object",
  "properties": {
    "entities": {"type": "array", "items": {"type": "string"}},
    "angle": {"type": "string"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source_id": {"type": "string"},
          "claim": {"type": "string"}
        },
        "required": ["source_id", "claim"]
      }
    }
  },
  "required": ["entities", "angle", "citations"]
}`

const draftSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "body_markdown": {"type": "string"},
    "citations_used": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "body_markdown", "citations_used"]
}`

const strictSuffix = `

Your previous answer could not be parsed. Respond with ONLY one JSON object that matches the required fields exactly. Do not wrap it in markdown fences. Do not add commentary before or after it.`

// DraftRequest carries everything the draft prompt needs.
type DraftRequest struct {
	Topic           string
	Brief           domain.ResearchBrief
	Sources         []domain.Source
	TargetWordCount int
	Profile         domain.AppProfile
	// Feedback names what the previous attempt got wrong; empty on the first attempt.
	Feedback string
	Attempt  int
}

// BriefPrompt builds the prompt that synthesises sources into a research
// brief. strict is set on the re-prompt after malformed output.
func BriefPrompt(topic string, sources []domain.Source, strict bool) CompletionRequest {
	var sys strings.Builder
	sys.WriteString("You are a research editor preparing a brief for a journalist. ")
	sys.WriteString("Read the numbered sources and identify the key entities, the most newsworthy angle, ")
	sys.WriteString("and the factual claims each source supports.\n\n")
	sys.WriteString("Rules:\n")
	sys.WriteString("- Cite only the source IDs given below. Never invent a source.\n")
	sys.WriteString("- Each citation pairs one source_id with one concrete claim from that source.\n")
	sys.WriteString("- Entities are people, organisations, places or products named in the sources.\n\n")
	sys.WriteString(`Respond with a JSON object: {"entities": [string], "angle": string, "citations": [{"source_id": string, "claim": string}]}`)
	if strict {
		sys.WriteString(strictSuffix)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Topic: %s\n\nSources:\n", topic)
	for _, src := range sources {
		if !src.Usable() {
			continue
		}
		fmt.Fprintf(&user, "\n[%s] %s\nURL: %s\n%s\n", src.ID, src.Title, src.URL, truncate(src.ExtractedText, maxSourceChars))
	}

	return CompletionRequest{
		Operation: OperationBrief,
		System:    sys.String(),
		User:      user.String(),
		JSON:      true,
		Schema:    briefSchema,
	}
}

// DraftPrompt builds the article writing prompt.
func DraftPrompt(req DraftRequest, strict bool) CompletionRequest {
	var sys strings.Builder
	sys.WriteString("You are a staff writer. Write a complete article in markdown from the research brief.\n\n")
	if req.Profile.Tone != "" {
		fmt.Fprintf(&sys, "Tone: %s\n", req.Profile.Tone)
	}
	if req.Profile.Audience != "" {
		fmt.Fprintf(&sys, "Audience: %s\n", req.Profile.Audience)
	}
	fmt.Fprintf(&sys, "Length: about %d words (stay within 15%%).\n", req.TargetWordCount)
	if len(req.Profile.RequiredSections) > 0 {
		sys.WriteString("Include these sections as markdown headings (## Heading):\n")
		for _, s := range req.Profile.RequiredSections {
			fmt.Fprintf(&sys, "- %s\n", s)
		}
	}
	sys.WriteString("\nSupport factual statements with the brief's citations and list every source ID you relied on in citations_used. ")
	sys.WriteString("Do not cite sources that are not in the brief.\n\n")
	sys.WriteString(`Respond with a JSON object: {"title": string, "body_markdown": string, "citations_used": [string]}`)
	if strict {
		sys.WriteString(strictSuffix)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&user, "Angle: %s\n", req.Brief.Angle)
	if len(req.Brief.Entities) > 0 {
		fmt.Fprintf(&user, "Key entities: %s\n", strings.Join(req.Brief.Entities, ", "))
	}

	titles := make(map[string]string, len(req.Sources))
	for _, s := range req.Sources {
		titles[s.ID] = s.Title
	}
	user.WriteString("\nCitations:\n")
	for _, c := range req.Brief.Citations {
		if t := titles[c.SourceID]; t != "" {
			fmt.Fprintf(&user, "- [%s] %s (%s)\n", c.SourceID, c.Claim, t)
		} else {
			fmt.Fprintf(&user, "- [%s] %s\n", c.SourceID, c.Claim)
		}
	}
	if req.Feedback != "" {
		fmt.Fprintf(&user, "\nRevision %d. Fix this in the new version: %s\n", req.Attempt, req.Feedback)
	}

	return CompletionRequest{
		Operation: OperationDraft,
		System:    sys.String(),
		User:      user.String(),
		JSON:      true,
		Schema:    draftSchema,
		MaxTokens: draftMaxTokens(req.TargetWordCount),
	}
}

// draftMaxTokens leaves room for the JSON envelope around the article.
func draftMaxTokens(targetWords int) int {
	return max(defaultMaxTokens, targetWords*2+1024)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexAny(cut, " \n"); i > n/2 {
		cut = cut[:i]
	}
	return cut + " ..."
}
