package httpserver

import (
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
)

type startArticleResponse struct {
	RunID   string                `json:"run_id"`
	Status  domain.PipelineStatus `json:"status"`
	Message string                `json:"message"`
}

type cancelRunResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

type articleSummaryResponse struct {
	ID           string               `json:"id"`
	App          string               `json:"app"`
	Topic        string               `json:"topic"`
	Title        string               `json:"title"`
	Status       domain.ArticleStatus `json:"status"`
	WordCount    int                  `json:"word_count"`
	QualityScore float64              `json:"quality_score"`
	BestEffort   bool                 `json:"best_effort"`
	ImageCount   int                  `json:"image_count"`
	CreatedAt    time.Time            `json:"created_at"`
}

type listArticlesResponse struct {
	Articles      []articleSummaryResponse `json:"articles"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
	TotalCount    int                      `json:"total_count"`
}

type listRunsResponse struct {
	Runs          []*domain.PipelineRun `json:"runs"`
	NextPageToken string                `json:"next_page_token,omitempty"`
	TotalCount    int                   `json:"total_count"`
}

func articleToSummary(a *domain.Article) articleSummaryResponse {
	return articleSummaryResponse{
		ID:           a.ID,
		App:          a.App,
		Topic:        a.Topic,
		Title:        a.Title,
		Status:       a.Status,
		WordCount:    a.WordCount,
		QualityScore: a.QualityScore,
		BestEffort:   a.BestEffort,
		ImageCount:   len(a.Images),
		CreatedAt:    a.CreatedAt,
	}
}
