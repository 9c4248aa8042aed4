package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/repograde/backend/evalsrvc"
	"github.com/repograde/backend/task"
)

type HttpServer struct {
	taskSrvc *task.TaskSrvc
	evalSrvc *evalsrvc.EvalSrvc
	router   *chi.Mux
	jwtKey   []byte
}

func NewHttpServer(
	taskSrvc *task.TaskSrvc,
	evalSrvc *evalsrvc.EvalSrvc,
	jwtKey []byte,
) *HttpServer {
	router := chi.NewRouter()

	logger := httplog.NewLogger("repograde", httplog.Options{
		LogLevel:         slog.LevelDebug,
		Concise:          true,
		RequestHeaders:   true,
		MessageFieldName: "message",
	})

	router.Use(httplog.RequestLogger(logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           3000,
	}))

	server := &HttpServer{
		taskSrvc: taskSrvc,
		evalSrvc: evalSrvc,
		router:   router,
		jwtKey:   jwtKey,
	}

	server.routes()

	return server
}

func (s *HttpServer) Start(address string) error {
	return http.ListenAndServe(address, s.router)
}

// Handler exposes the router, used by httptest in tests.
func (s *HttpServer) Handler() http.Handler {
	return s.router
}

func (s *HttpServer) routes() {
	r := s.router
	r.Get("/health", s.health)
	r.Post("/evaluations", s.submitEvaluation)
	r.Get("/evaluations/{taskID}", s.getEvaluation)
	r.Get("/evaluations/{taskID}/status", s.getEvaluationStatus)

	r.Group(func(r chi.Router) {
		r.Use(getJwtAuthMiddleware(s.jwtKey))
		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.issueTasks)
	})
}
