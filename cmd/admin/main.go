package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/repograde/backend/conf"
	"github.com/repograde/backend/evalsrvc"
	"github.com/repograde/backend/task"
)

func main() {
	_ = godotenv.Load()

	var logLevel string
	var rootCmd = &cobra.Command{
		Use:   "repograde",
		Short: "Admin CLI tool for the repograde backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return InitializeLogger(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level [debug, info, warn, error]")

	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the evaluations schema in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			connStr := conf.GetPgConnStrFromEnv()
			if connStr == "" {
				return fmt.Errorf("POSTGRES_HOST is not set")
			}
			pool, err := pgxpool.New(cmd.Context(), connStr)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer pool.Close()

			if err := evalsrvc.CreateSchema(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info().Msg("evaluations schema created")
			return nil
		},
	})

	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Generate & inspect tasks",
	}

	var template string
	var round int
	var students string
	var date string

	genCmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate tasks for a list of students",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tmpl *task.Template
			for i := range task.DefaultTemplates {
				if task.DefaultTemplates[i].ID == template {
					tmpl = &task.DefaultTemplates[i]
					break
				}
			}
			if tmpl == nil {
				return fmt.Errorf("unknown template: %s", template)
			}
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}

			repo, err := taskRepoFromEnv(cmd.Context())
			if err != nil {
				return err
			}
			srvc := task.NewTaskSrvc(repo)

			list := strings.Split(students, ",")
			tasks, err := srvc.IssueTasks(cmd.Context(), *tmpl, list, round, date)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				log.Info().
					Str("task_id", t.ID).
					Str("student", t.StudentID).
					Str("nonce", t.Nonce).
					Msg("task generated")
			}
			return nil
		},
	}
	genCmd.Flags().StringVarP(&template, "template", "t", "", "Task template id (required)")
	genCmd.Flags().IntVarP(&round, "round", "r", 1, "Round number")
	genCmd.Flags().StringVarP(&students, "students", "s", "", "Comma-separated student emails (required)")
	genCmd.Flags().StringVarP(&date, "date", "d", "", "Seed date (YYYY-MM-DD), defaults to today")
	genCmd.MarkFlagRequired("template")
	genCmd.MarkFlagRequired("students")

	cmd.AddCommand(genCmd)
	return cmd
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Inspect evaluation records",
	}

	var taskID string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the evaluation record of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			connStr := conf.GetPgConnStrFromEnv()
			if connStr == "" {
				return fmt.Errorf("POSTGRES_HOST is not set")
			}
			pool, err := pgxpool.New(cmd.Context(), connStr)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer pool.Close()

			rec, err := evalsrvc.NewPgEvalRepo(pool).Get(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	getCmd.Flags().StringVarP(&taskID, "task", "t", "", "Task id (required)")
	getCmd.MarkFlagRequired("task")

	cmd.AddCommand(getCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin JWT for the protected API routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("JWT_KEY")
			if key == "" {
				return fmt.Errorf("JWT_KEY is not set")
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "admin",
				"exp": time.Now().Add(ttl).Unix(),
			})
			signed, err := token.SignedString([]byte(key))
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func taskRepoFromEnv(ctx context.Context) (task.TaskRepo, error) {
	tableName := os.Getenv("TASK_TABLE_NAME")
	if tableName == "" {
		return nil, fmt.Errorf("TASK_TABLE_NAME is not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return task.NewDynamoDbTaskTable(dynamodb.NewFromConfig(awsCfg), tableName), nil
}
