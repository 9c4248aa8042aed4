package conf

import (
	"fmt"
	"os"
)

// Conf holds process-level configuration read once at startup.
// Services receive it (or slices of it) through constructors instead
// of reading the environment themselves.
type Conf struct {
	HTTPAddress string

	PgConnStr     string
	TaskTableName string

	EvalBucket   string // S3 bucket for full check detail payloads
	EvalQueueURL string // SQS queue for evaluation jobs

	RedisAddr     string
	RedisPassword string

	JwtKey []byte

	GithubToken string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string
	DockerImage string
	RoundsPath  string
}

// FromEnv reads configuration from environment variables. Only the
// HTTP address has a default; integrations left unset are disabled by
// the caller.
func FromEnv() Conf {
	c := Conf{
		HTTPAddress:   getenvDefault("HTTP_ADDRESS", ":8080"),
		PgConnStr:     GetPgConnStrFromEnv(),
		TaskTableName: os.Getenv("TASK_TABLE_NAME"),
		EvalBucket:    os.Getenv("EVAL_S3_BUCKET"),
		EvalQueueURL:  os.Getenv("EVAL_SQS_QUEUE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JwtKey:        []byte(os.Getenv("JWT_KEY")),
		GithubToken:   os.Getenv("GITHUB_TOKEN"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:      getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:    getenvDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		DockerImage:   getenvDefault("SANDBOX_IMAGE", "node:20-alpine"),
		RoundsPath:    getenvDefault("ROUNDS_CONFIG_PATH", "rounds.toml"),
	}
	return c
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetPgConnStrFromEnv assembles a Postgres connection string from the
// POSTGRES_* environment variables.
func GetPgConnStrFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	pw := os.Getenv("POSTGRES_PW")
	user := os.Getenv("POSTGRES_USER")
	port := os.Getenv("POSTGRES_PORT")
	db := os.Getenv("POSTGRES_DB")
	ssl := os.Getenv("POSTGRES_SSLMODE")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, pw, db, ssl)
}
