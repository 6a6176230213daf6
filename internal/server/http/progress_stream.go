package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

const (
	// sseQueryInterval is how often a streamed run is polled.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration caps how long a stream stays open.
	sseMaxDuration = time.Hour
)

// Event types sent on the progress stream.
const (
	sseEventProgress  = "progress_update"
	sseEventCompleted = "completed"
	sseEventError     = "error"
	sseEventTimeout   = "timeout"
)

type sseEvent struct {
	EventType string                     `json:"event_type"`
	RunID     string                     `json:"run_id"`
	Status    domain.PipelineStatus      `json:"status,omitempty"`
	Progress  *temporal.PipelineProgress `json:"progress,omitempty"`
	Error     *domain.PipelineError      `json:"error,omitempty"`
	Message   string                     `json:"message,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

func wantsStream(r *http.Request) bool {
	return r.URL.Query().Get("stream") == "true" ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamProgress polls the run and pushes its progress until it reaches a
// terminal state, the client disconnects or the stream times out.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	deadline := time.NewTimer(sseMaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(s.progressInterval)
	defer ticker.Stop()

	for {
		if done := s.pushProgress(w, flusher, r, runID); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: sseEventTimeout,
				RunID:     runID,
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return
		case <-ticker.C:
		}
	}
}

// pushProgress sends one event and reports whether the stream is finished.
func (s *Server) pushProgress(w http.ResponseWriter, flusher http.Flusher, r *http.Request, runID string) bool {
	st, err := s.pipeline.GetStatus(r.Context(), runID)
	if err != nil {
		if r.Context().Err() != nil {
			return true
		}
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to poll run status")
		sendSSEEvent(w, flusher, sseEvent{
			EventType: sseEventError,
			RunID:     runID,
			Message:   "run status unavailable",
			Timestamp: time.Now(),
		})
		return true
	}

	if st.State != temporal.RunStateRunning {
		sendSSEEvent(w, flusher, sseEvent{
			EventType: sseEventCompleted,
			RunID:     runID,
			Status:    st.Status,
			Error:     st.Error,
			Message:   "run finished with status " + string(st.Status),
			Timestamp: time.Now(),
		})
		return true
	}

	event := sseEvent{EventType: sseEventProgress, RunID: runID, Status: st.Status, Timestamp: time.Now()}
	if progress, err := s.pipeline.QueryProgress(r.Context(), runID); err == nil {
		event.Progress = progress
		event.Status = progress.Status
	}
	sendSSEEvent(w, flusher, event)
	return false
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
