package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsroom/content-pipeline/internal/domain"
)

type briefOutput struct {
	Entities  []string `json:"entities"`
	Angle     string   `json:"angle"`
	Citations []struct {
		SourceID string `json:"source_id"`
		Claim    string `json:"claim"`
	} `json:"citations"`
}

type draftOutput struct {
	Title         string   `json:"title"`
	BodyMarkdown  string   `json:"body_markdown"`
	CitationsUsed []string `json:"citations_used"`
}

// ParseBrief decodes a brief from model output. Citations are returned as
// written; matching them against the gathered sources is left to the caller.
func ParseBrief(content string) (*domain.ResearchBrief, error) {
	var out briefOutput
	if err := decodeObject(content, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Angle) == "" {
		return nil, fmt.Errorf("%w: brief has no angle", ErrMalformedOutput)
	}

	brief := &domain.ResearchBrief{
		Entities:  make([]string, 0, len(out.Entities)),
		Angle:     strings.TrimSpace(out.Angle),
		Citations: make([]domain.Citation, 0, len(out.Citations)),
	}
	for _, e := range out.Entities {
		if e = strings.TrimSpace(e); e != "" {
			brief.Entities = append(brief.Entities, e)
		}
	}
	for _, c := range out.Citations {
		id := strings.Trim(strings.TrimSpace(c.SourceID), "[]")
		if id == "" {
			continue
		}
		brief.Citations = append(brief.Citations, domain.Citation{SourceID: id, Claim: strings.TrimSpace(c.Claim)})
	}
	return brief, nil
}

// ParseDraft decodes an article draft and computes its word count from the body.
func ParseDraft(content string) (*domain.ArticleDraft, error) {
	var out draftOutput
	if err := decodeObject(content, &out); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(out.BodyMarkdown)
	if body == "" {
		return nil, fmt.Errorf("%w: draft has no body", ErrMalformedOutput)
	}

	cited := make([]string, 0, len(out.CitationsUsed))
	seen := make(map[string]bool, len(out.CitationsUsed))
	for _, id := range out.CitationsUsed {
		id = strings.Trim(strings.TrimSpace(id), "[]")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}

	return &domain.ArticleDraft{
		Title:         strings.TrimSpace(out.Title),
		BodyMarkdown:  body,
		WordCount:     domain.CountWords(body),
		CitationsUsed: cited,
	}, nil
}

// decodeObject extracts the outermost JSON object from s, tolerating markdown
// fences and surrounding prose, and decodes it into v.
func decodeObject(s string, v interface{}) error {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}
