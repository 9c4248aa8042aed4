package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	docker "github.com/docker/docker/client"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/repograde/backend/check"
	"github.com/repograde/backend/conf"
	"github.com/repograde/backend/evalsrvc"
	"github.com/repograde/backend/http"
	"github.com/repograde/backend/repofetch"
	"github.com/repograde/backend/task"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg := conf.FromEnv()

	if len(cfg.JwtKey) == 0 {
		slog.Error("JWT_KEY is not set")
		os.Exit(1)
	}

	rounds, err := conf.LoadRounds(cfg.RoundsPath)
	if err != nil {
		slog.Error("failed to load rounds config", "error", err)
		os.Exit(1)
	}

	fetcher := repofetch.NewGithubFetcher(cfg.GithubToken)
	registry := buildRegistry(cfg, fetcher)

	evalRepo := buildEvalRepo(ctx, cfg)
	evalSrvc := evalsrvc.NewEvalSrvc(evalRepo, registry, rounds)

	needsAws := cfg.EvalBucket != "" || cfg.EvalQueueURL != "" || cfg.TaskTableName != ""
	var taskRepo task.TaskRepo = task.NewInMemRepo()
	if needsAws {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if cfg.EvalBucket != "" {
			evalSrvc.WithArchive(evalsrvc.NewS3EvalRepo(
				s3.NewFromConfig(awsCfg), cfg.EvalBucket))
		}
		if cfg.EvalQueueURL != "" {
			evalSrvc.WithQueue(evalsrvc.NewEvalQueue(
				sqs.NewFromConfig(awsCfg), cfg.EvalQueueURL))
		}
		if cfg.TaskTableName != "" {
			taskRepo = task.NewDynamoDbTaskTable(
				dynamodb.NewFromConfig(awsCfg), cfg.TaskTableName)
		}
	}
	taskSrvc := task.NewTaskSrvc(taskRepo)

	if cfg.EvalQueueURL != "" {
		go func() {
			if err := evalSrvc.StartWorker(ctx, taskSrvc); err != nil {
				slog.Error("evaluation worker stopped", "error", err)
			}
		}()
	}

	httpServer := http.NewHttpServer(taskSrvc, evalSrvc, cfg.JwtKey)

	log.Printf("Starting server on %s", cfg.HTTPAddress)
	err = httpServer.Start(cfg.HTTPAddress)
	log.Printf("Server stopped with error: %v", err)
}

func buildRegistry(cfg conf.Conf, fetcher repofetch.Fetcher) *check.Registry {
	runners := []check.Runner{
		check.NewStaticRunner(fetcher),
	}

	dockerClient, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		slog.Warn("docker unavailable, dynamic checks run without sandbox", "error", err)
		runners = append(runners, check.NewDynamicRunner(fetcher, nil, check.ExecLimits{}))
	} else {
		sandbox := check.NewDockerSandbox(dockerClient, cfg.DockerImage)
		runners = append(runners, check.NewDynamicRunner(fetcher, sandbox, check.ExecLimits{
			MemoryBytes: 256 << 20,
			NanoCPUs:    1e9,
			MaxOutput:   64 << 10,
		}))
	}

	if cfg.LLMAPIKey != "" {
		runners = append(runners, check.NewLLMRunner(
			fetcher, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel))
	} else {
		slog.Warn("LLM_API_KEY not set, llm checks disabled")
	}

	return check.NewRegistry(runners...)
}

func buildEvalRepo(ctx context.Context, cfg conf.Conf) evalsrvc.EvalRepo {
	var repo evalsrvc.EvalRepo
	if cfg.PgConnStr != "" {
		pool, err := pgxpool.New(ctx, cfg.PgConnStr)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		repo = evalsrvc.NewPgEvalRepo(pool)
	} else {
		slog.Warn("POSTGRES_HOST not set, using in-memory evaluation store")
		repo = evalsrvc.NewInMemEvalRepo()
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		repo = evalsrvc.NewRedisStatusCache(repo, rdb)
	}
	return repo
}
