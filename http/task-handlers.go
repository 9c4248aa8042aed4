package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"

	"github.com/repograde/backend/task"
)

func (s *HttpServer) listTasks(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	tasks, err := s.taskSrvc.ListTasks(r.Context())
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	mapped := make([]Task, len(tasks))
	for i, t := range tasks {
		mapped[i] = mapTask(t)
	}
	writeJsonSuccessResponse(w, mapped)
}

type issueTasksRequest struct {
	Template string   `json:"template"`
	Round    int      `json:"round"`
	Students []string `json:"students"`
}

// issueTasks generates one task per student from a built-in template.
// Admin-only.
func (s *HttpServer) issueTasks(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	var req issueTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonErrorResponse(w, "invalid JSON body",
			http.StatusBadRequest, "invalid_request_body")
		return
	}
	if len(req.Students) == 0 {
		writeJsonErrorResponse(w, "students list is required",
			http.StatusBadRequest, "missing_required_field")
		return
	}

	var tmpl *task.Template
	for i := range task.DefaultTemplates {
		if task.DefaultTemplates[i].ID == req.Template {
			tmpl = &task.DefaultTemplates[i]
			break
		}
	}
	if tmpl == nil {
		writeJsonErrorResponse(w, "unknown task template",
			http.StatusBadRequest, "unknown_template")
		return
	}

	date := time.Now().Format("2006-01-02")
	tasks, err := s.taskSrvc.IssueTasks(r.Context(), *tmpl, req.Students, req.Round, date)
	if err != nil {
		handleJsonSrvcError(logger, w, err)
		return
	}

	mapped := make([]Task, len(tasks))
	for i, t := range tasks {
		mapped[i] = mapTask(t)
		mapped[i].Nonce = t.Nonce
	}
	writeJsonResponse(w, http.StatusCreated, mapped)
}
