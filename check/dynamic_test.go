package check

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repograde/backend/repofetch"
)

type fakeSandbox struct {
	res ExecResult
	err error

	gotCmd []string
}

func (s *fakeSandbox) Exec(ctx context.Context, snapshot *repofetch.Snapshot, cmd []string, limits ExecLimits) (ExecResult, error) {
	s.gotCmd = cmd
	return s.res, s.err
}

func TestDynamicRunnerProbesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>Sales Summary</title></head><body>Total: 4200</body></html>"))
	}))
	defer srv.Close()

	runner := NewDynamicRunner(stubFetcher{}, nil, ExecLimits{})
	res, err := runner.Run(context.Background(),
		repofetch.Ref{PagesURL: srv.URL}, Config{})
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.Equal(t, 100.0, res.Score)
	assert.Contains(t, res.Detail, "PASS pages_availability")
	assert.Contains(t, res.Detail, "PASS page_title")
	assert.Contains(t, res.Detail, "PASS page_content")
}

func TestDynamicRunnerPagesDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	runner := NewDynamicRunner(stubFetcher{}, nil, ExecLimits{})
	res, err := runner.Run(context.Background(),
		repofetch.Ref{PagesURL: srv.URL}, Config{})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Detail, "FAIL pages_availability")
	// title and content checks are skipped on an unavailable site
	assert.NotContains(t, res.Detail, "page_title")
}

func TestDynamicRunnerPagesMissingTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>content without a title</body></html>"))
	}))
	defer srv.Close()

	runner := NewDynamicRunner(stubFetcher{}, nil, ExecLimits{})
	res, err := runner.Run(context.Background(),
		repofetch.Ref{PagesURL: srv.URL}, Config{})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Contains(t, res.Detail, "FAIL page_title")
	assert.Contains(t, res.Detail, "PASS page_content")
}

func TestDynamicRunnerSandboxRun(t *testing.T) {
	sandbox := &fakeSandbox{res: ExecResult{ExitCode: 0, Output: "42"}}
	runner := NewDynamicRunner(stubFetcher{snapshot: goodSnapshot()}, sandbox, ExecLimits{})

	res, err := runner.Run(context.Background(), repofetch.Ref{},
		Config{RunCommand: []string{"node", "index.js"}})
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.Contains(t, res.Detail, "PASS sandbox_run")
	assert.Equal(t, []string{"node", "index.js"}, sandbox.gotCmd)
}

func TestDynamicRunnerSandboxFailure(t *testing.T) {
	sandbox := &fakeSandbox{res: ExecResult{ExitCode: 1, Output: "SyntaxError"}}
	runner := NewDynamicRunner(stubFetcher{snapshot: goodSnapshot()}, sandbox, ExecLimits{})

	res, err := runner.Run(context.Background(), repofetch.Ref{},
		Config{RunCommand: []string{"node", "index.js"}})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Contains(t, res.Detail, "FAIL sandbox_run")
	assert.Contains(t, res.Detail, "SyntaxError")
}

func TestDynamicRunnerRequiresSandboxForRunCommand(t *testing.T) {
	runner := NewDynamicRunner(stubFetcher{}, nil, ExecLimits{})
	_, err := runner.Run(context.Background(), repofetch.Ref{},
		Config{RunCommand: []string{"node", "index.js"}})
	require.Error(t, err)
}

func TestDynamicRunnerNothingToEvaluate(t *testing.T) {
	runner := NewDynamicRunner(stubFetcher{}, nil, ExecLimits{})
	res, err := runner.Run(context.Background(), repofetch.Ref{}, Config{})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Detail, "nothing to evaluate")
}
