package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/httplog/v2"

	"github.com/repograde/backend/task"
)

type submitEvaluationRequest struct {
	Task      string `json:"task"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// submitEvaluation receives a repository submission from a student,
// attaches it to the task and queues the evaluation. Responds 202 with
// the pending record.
func (s *HttpServer) submitEvaluation(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	var req submitEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonErrorResponse(w, "invalid JSON body",
			http.StatusBadRequest, "invalid_request_body")
		return
	}
	if req.Task == "" || req.Nonce == "" || req.RepoURL == "" || req.CommitSHA == "" {
		writeJsonErrorResponse(w, "task, nonce, repo_url and commit_sha are required",
			http.StatusBadRequest, "missing_required_field")
		return
	}

	t, err := s.taskSrvc.AttachSubmission(r.Context(), req.Task, req.Nonce, task.Submission{
		RepoURL:   req.RepoURL,
		CommitSHA: req.CommitSHA,
		PagesURL:  req.PagesURL,
	})
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	rec, err := s.evalSrvc.EnqueueEvaluation(r.Context(), t)
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	writeJsonResponse(w, http.StatusAccepted, mapEvaluation(rec))
}
