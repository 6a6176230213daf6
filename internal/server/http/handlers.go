package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/repository"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20
	maxCancelReason    = 500
)

type cancelRunRequest struct {
	Reason string `json:"reason,omitempty"`
}

// startArticle handles POST /v1/articles. The body uses the trigger payload
// field names and the response carries the run ID.
func (s *Server) startArticle(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload domain.ArticleRequestedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	runID, err := s.pipeline.StartWorkflow(r.Context(), payload.ToRequest())
	if err != nil {
		s.logger.Error().Err(err).Str("app", payload.App).Msg("failed to start pipeline run")
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("run_id", runID).Str("app", payload.App).Msg("pipeline run started")
	writeJSON(w, http.StatusAccepted, startArticleResponse{
		RunID:   runID,
		Status:  domain.StatusStarted,
		Message: "pipeline run started",
	})
}

// getRun handles GET /v1/runs/{runID}. It never blocks on a running pipeline.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.GetStatus(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// getRunResult handles GET /v1/runs/{runID}/result and waits for the run to
// finish, bounded by the request context.
func (s *Server) getRunResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.GetResult(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getRunProgress handles GET /v1/runs/{runID}/progress. Clients asking for
// text/event-stream (or passing stream=true) get a server-sent event stream.
func (s *Server) getRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if wantsStream(r) {
		s.streamProgress(w, r, runID)
		return
	}

	progress, err := s.pipeline.QueryProgress(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// cancelRun handles DELETE /v1/runs/{runID}.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var req cancelRunRequest
	if r.Body != nil {
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON request body")
				return
			}
		}
	}
	if len(req.Reason) > maxCancelReason {
		writeError(w, http.StatusBadRequest, "reason must be at most 500 characters")
		return
	}

	if err := s.pipeline.Cancel(r.Context(), runID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("run_id", runID).Str("reason", req.Reason).Msg("cancellation requested")
	writeJSON(w, http.StatusAccepted, cancelRunResponse{RunID: runID, Message: "cancellation requested"})
}

// listRuns handles GET /v1/runs from the run status table.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)
	filter := repository.RunFilter{
		App:    r.URL.Query().Get("app"),
		Status: domain.PipelineStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:  limit,
		Offset: offset,
	}

	runs, total, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list runs")
		writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []*domain.PipelineRun{}
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          runs,
		NextPageToken: encodePageToken(offset, limit, int(total)),
		TotalCount:    int(total),
	})
}

// listArticles handles GET /v1/articles.
func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	status := domain.ArticleStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ArticlePublished, domain.ArticlePendingReview, domain.ArticleRejected:
	default:
		writeError(w, http.StatusBadRequest, "status must be one of published, pending_review, rejected")
		return
	}

	limit, offset := parsePaginationParams(r)
	articles, total, err := s.articles.List(r.Context(), repository.ArticleFilter{
		App:    r.URL.Query().Get("app"),
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list articles")
		writeDomainError(w, err)
		return
	}

	resp := listArticlesResponse{
		Articles:      make([]articleSummaryResponse, 0, len(articles)),
		NextPageToken: encodePageToken(offset, limit, int(total)),
		TotalCount:    int(total),
	}
	for _, a := range articles {
		resp.Articles = append(resp.Articles, articleToSummary(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getArticle handles GET /v1/articles/{articleID}.
func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.articles.Get(r.Context(), chi.URLParam(r, "articleID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// writeDomainError maps domain and Temporal errors onto status codes without
// leaking internal details.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrUnknownApp):
		writeError(w, http.StatusBadRequest, "unknown app")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "run already started")
	case errors.Is(err, temporal.ErrQueryFailed):
		writeError(w, http.StatusConflict, "run is not answering queries")
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, temporal.ErrResourceExhausted):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, temporal.ErrConnectionFailed), errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, temporal.ErrDeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "deadline exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parsePaginationParams reads page_size and the opaque page_token.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if token := r.URL.Query().Get("page_token"); token != "" {
		if decoded, err := base64.StdEncoding.DecodeString(token); err == nil {
			if parsed, err := strconv.Atoi(string(decoded)); err == nil && parsed > 0 {
				offset = parsed
			}
		}
	}
	return limit, offset
}

// encodePageToken returns the token of the next page, or "" on the last page.
func encodePageToken(offset, limit, total int) string {
	next := offset + limit
	if next >= total {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(next)))
}
