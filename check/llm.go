package check

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/repograde/backend/repofetch"
)

// LLMRunner scores the repository against the task rubric with a chat
// completion model behind an OpenAI-compatible API.
type LLMRunner struct {
	fetcher    repofetch.Fetcher
	httpClient *http.Client

	baseURL string
	apiKey  string
	model   string
}

func NewLLMRunner(fetcher repofetch.Fetcher, baseURL, apiKey, model string) *LLMRunner {
	return &LLMRunner{
		fetcher:    fetcher,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

func (r *LLMRunner) Kind() Kind { return KindLLM }

const llmSystemPrompt = `You grade student repository submissions. ` +
	`Given a rubric and repository files, respond with a JSON object ` +
	`{"score": <0-100>, "reason": "<one paragraph>"} and nothing else.`

type chatReq struct {
	Model    string    `json:"model"`
	Messages []chatMsg `json:"messages"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
}

type llmVerdict struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (r *LLMRunner) Run(ctx context.Context, ref repofetch.Ref, cfg Config) (Result, error) {
	snapshot, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	verdict, err := r.grade(ctx, snapshot, cfg.Rubric)
	if err != nil {
		return Result{}, err
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 100 {
		verdict.Score = 100
	}

	return Result{
		Passed: verdict.Score >= 50,
		Score:  verdict.Score,
		Detail: verdict.Reason,
	}, nil
}

func (r *LLMRunner) grade(ctx context.Context, snapshot *repofetch.Snapshot, rubric []string) (llmVerdict, error) {
	prompt := buildPrompt(snapshot, rubric)

	body, err := json.Marshal(chatReq{
		Model: r.model,
		Messages: []chatMsg{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return llmVerdict{}, fmt.Errorf("failed to marshal grading request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llmVerdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return llmVerdict{}, fmt.Errorf("grading request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return llmVerdict{}, fmt.Errorf("grading API returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var cr chatResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return llmVerdict{}, fmt.Errorf("failed to decode grading response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return llmVerdict{}, fmt.Errorf("grading response has no choices")
	}

	var verdict llmVerdict
	content := extractJSON(cr.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return llmVerdict{}, fmt.Errorf("grading response is not valid verdict JSON: %w", err)
	}
	return verdict, nil
}

const maxPromptFileSize = 16 << 10

func buildPrompt(snapshot *repofetch.Snapshot, rubric []string) string {
	var b strings.Builder
	b.WriteString("Rubric:\n")
	for _, item := range rubric {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("\nRepository files:\n")
	for _, path := range snapshot.Paths() {
		if !includeInPrompt(path) {
			continue
		}
		content := snapshot.File(path)
		if len(content) > maxPromptFileSize {
			content = content[:maxPromptFileSize]
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", path, content)
	}
	return b.String()
}

func includeInPrompt(path string) bool {
	for _, suffix := range []string{".md", ".html", ".js", ".css", ".json", ".txt"} {
		if strings.HasSuffix(strings.ToLower(path), suffix) {
			return true
		}
	}
	base := strings.ToUpper(path)
	return base == "LICENSE" || base == "MAKEFILE"
}

// extractJSON tolerates models wrapping the verdict in a code fence.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i >= 0 {
		if j := strings.LastIndex(content, "}"); j > i {
			return content[i : j+1]
		}
	}
	return content
}
