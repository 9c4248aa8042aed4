package check

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/repograde/backend/repofetch"
)

// DynamicRunner evaluates the running artifact: it probes the deployed
// Pages site and, when the round configures a run command, executes the
// submitted code inside the sandbox.
type DynamicRunner struct {
	fetcher    repofetch.Fetcher
	sandbox    Sandbox
	httpClient *http.Client

	limits ExecLimits
}

func NewDynamicRunner(fetcher repofetch.Fetcher, sandbox Sandbox, limits ExecLimits) *DynamicRunner {
	if limits.MaxOutput == 0 {
		limits.MaxOutput = 64 << 10
	}
	return &DynamicRunner{
		fetcher: fetcher,
		sandbox: sandbox,
		limits:  limits,
	}
}

func (r *DynamicRunner) Kind() Kind { return KindDynamic }

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func (r *DynamicRunner) Run(ctx context.Context, ref repofetch.Ref, cfg Config) (Result, error) {
	var checks []subcheck

	if ref.PagesURL != "" {
		probe, err := repofetch.ProbePages(ctx, r.httpClient, ref.PagesURL)
		if err != nil {
			return Result{}, err
		}
		checks = append(checks, pagesChecks(probe)...)
	}

	if len(cfg.RunCommand) > 0 {
		if r.sandbox == nil {
			return Result{}, fmt.Errorf("run command configured but no sandbox available")
		}
		snapshot, err := r.fetcher.Fetch(ctx, ref)
		if err != nil {
			return Result{}, err
		}
		res, err := r.sandbox.Exec(ctx, snapshot, cfg.RunCommand, r.limits)
		if err != nil {
			return Result{}, err
		}
		checks = append(checks, sandboxCheck(cfg.RunCommand, res))
	}

	if len(checks) == 0 {
		return Result{
			Passed: false,
			Score:  0,
			Detail: "nothing to evaluate dynamically: no pages URL submitted and no run command configured",
		}, nil
	}

	passed := 0
	var detail strings.Builder
	for _, c := range checks {
		mark := "FAIL"
		if c.passed {
			mark = "PASS"
			passed++
		}
		fmt.Fprintf(&detail, "%s %s: %s\n", mark, c.name, c.reason)
	}

	return Result{
		Passed: passed == len(checks),
		Score:  100 * float64(passed) / float64(len(checks)),
		Detail: detail.String(),
	}, nil
}

func pagesChecks(probe repofetch.PageProbe) []subcheck {
	var checks []subcheck

	if probe.StatusCode == http.StatusOK {
		checks = append(checks, subcheck{"pages_availability", true,
			fmt.Sprintf("deployed site responded with HTTP 200 in %s", probe.Elapsed.Round(time.Millisecond))})
	} else {
		checks = append(checks, subcheck{"pages_availability", false,
			fmt.Sprintf("deployed site returned HTTP %d", probe.StatusCode)})
		return checks
	}

	body := string(probe.Body)
	if m := titleRe.FindStringSubmatch(body); m != nil && strings.TrimSpace(m[1]) != "" {
		checks = append(checks, subcheck{"page_title", true,
			fmt.Sprintf("page title: %.50s", strings.TrimSpace(m[1]))})
	} else {
		checks = append(checks, subcheck{"page_title", false, "page has no title"})
	}

	if strings.TrimSpace(stripTags(body)) != "" {
		checks = append(checks, subcheck{"page_content", true,
			fmt.Sprintf("page has content (%d bytes)", len(probe.Body))})
	} else {
		checks = append(checks, subcheck{"page_content", false, "page appears to have no content"})
	}

	return checks
}

func sandboxCheck(cmd []string, res ExecResult) subcheck {
	name := "sandbox_run"
	output := res.Output
	if res.Truncated {
		output += " [output truncated]"
	}
	if res.ExitCode == 0 {
		return subcheck{name, true,
			fmt.Sprintf("%q exited 0 in %s", strings.Join(cmd, " "), res.Elapsed.Round(time.Millisecond))}
	}
	return subcheck{name, false,
		fmt.Sprintf("%q exited %d: %.500s", strings.Join(cmd, " "), res.ExitCode, output)}
}

var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTags(html string) string {
	return tagRe.ReplaceAllString(html, " ")
}
