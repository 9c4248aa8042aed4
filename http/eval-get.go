package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"github.com/repograde/backend/evalsrvc"
)

// getEvaluation maps evaluation states onto HTTP codes: a record that
// is still pending or running answers 202, a final record answers 200
// (failed records included, with their error detail), an unknown task
// id answers 404.
func (s *HttpServer) getEvaluation(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	taskID := chi.URLParam(r, "taskID")

	rec, err := s.evalSrvc.Get(r.Context(), taskID)
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	code := http.StatusOK
	if !rec.Final() {
		code = http.StatusAccepted
	}
	writeJsonResponse(w, code, mapEvaluation(rec))
}

type evaluationStatus struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (s *HttpServer) getEvaluationStatus(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	taskID := chi.URLParam(r, "taskID")

	status, err := s.evalSrvc.GetStatus(r.Context(), taskID)
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	code := http.StatusOK
	if status == evalsrvc.StatusPending || status == evalsrvc.StatusRunning {
		code = http.StatusAccepted
	}
	writeJsonResponse(w, code, evaluationStatus{TaskID: taskID, Status: status})
}
