package check

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/repograde/backend/repofetch"
)

// StaticRunner inspects the repository snapshot without executing any
// of it: license, README presence and quality, basic structure.
type StaticRunner struct {
	fetcher repofetch.Fetcher
}

func NewStaticRunner(fetcher repofetch.Fetcher) *StaticRunner {
	return &StaticRunner{fetcher: fetcher}
}

func (r *StaticRunner) Kind() Kind { return KindStatic }

var (
	mdTitleRe   = regexp.MustCompile(`(?m)^# .+`)
	mdSectionRe = regexp.MustCompile(`(?m)^## .+`)
)

type subcheck struct {
	name   string
	passed bool
	reason string
}

func (r *StaticRunner) Run(ctx context.Context, ref repofetch.Ref, cfg Config) (Result, error) {
	snapshot, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	var checks []subcheck

	checks = append(checks, checkNotEmpty(snapshot))
	checks = append(checks, checkLicense(snapshot))
	checks = append(checks, checkReadmeExists(snapshot))
	checks = append(checks, checkReadmeQuality(snapshot))
	checks = append(checks, checkEntrypoint(snapshot))

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

	score := 100 * float64(passed) / float64(len(checks))
	return Result{
		Passed: passed == len(checks),
		Score:  score,
		Detail: detail.String(),
	}, nil
}

func checkNotEmpty(s *repofetch.Snapshot) subcheck {
	n := len(s.Paths())
	if n == 0 {
		return subcheck{"repository_content", false, "repository snapshot is empty"}
	}
	return subcheck{"repository_content", true, fmt.Sprintf("%d files", n)}
}

func checkLicense(s *repofetch.Snapshot) subcheck {
	content, ok := s.Lookup("LICENSE")
	if !ok {
		content, ok = s.Lookup("LICENSE.md")
	}
	if !ok {
		return subcheck{"license", false, "no LICENSE file"}
	}
	if !strings.Contains(string(content), "MIT License") {
		return subcheck{"license", false, "LICENSE is not the MIT license"}
	}
	return subcheck{"license", true, "MIT license found"}
}

func checkReadmeExists(s *repofetch.Snapshot) subcheck {
	if _, ok := s.Lookup("README.md"); !ok {
		return subcheck{"readme_exists", false, "README.md not found"}
	}
	return subcheck{"readme_exists", true, "README.md found"}
}

// checkReadmeQuality applies the heuristics a reviewer would: a title,
// enough prose, sections, code examples, setup instructions.
func checkReadmeQuality(s *repofetch.Snapshot) subcheck {
	content, ok := s.Lookup("README.md")
	if !ok {
		return subcheck{"readme_quality", false, "README.md not found"}
	}
	text := string(content)
	lower := strings.ToLower(text)

	criteria := []bool{
		mdTitleRe.MatchString(text),
		len(text) > 100,
		len(mdSectionRe.FindAllString(text, -1)) >= 2,
		strings.Contains(text, "```"),
		strings.Contains(lower, "setup") || strings.Contains(lower, "install") || strings.Contains(lower, "usage"),
		strings.Contains(lower, "license"),
	}
	met := 0
	for _, ok := range criteria {
		if ok {
			met++
		}
	}
	reason := fmt.Sprintf("%d/%d quality criteria met", met, len(criteria))
	return subcheck{"readme_quality", met*2 >= len(criteria), reason}
}

func checkEntrypoint(s *repofetch.Snapshot) subcheck {
	if f := s.File("index.html"); f != nil {
		return subcheck{"entrypoint", true, "index.html found at repository root"}
	}
	return subcheck{"entrypoint", false, "no index.html at repository root"}
}
