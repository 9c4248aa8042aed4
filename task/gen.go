package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template describes one task family. Brief and check templates may
// contain {seed} and {result} placeholders that are substituted per
// student so that every generated instance differs but stays
// reproducible from the seed.
type Template struct {
	ID     string
	Name   string
	Brief  string
	Checks []string

	Round2Brief  string
	Round2Checks []string
}

// Seed derives a deterministic per-student seed from the student id
// and a date string, so regenerating a round yields the same tasks.
func Seed(studentID string, date string) string {
	sum := sha256.Sum256([]byte(studentID + ":" + date))
	return hex.EncodeToString(sum[:])[:16]
}

// Generate instantiates a template for one student and round.
func (t Template) Generate(studentID string, round int, seed string) (Task, error) {
	brief := t.Brief
	checks := t.Checks
	if round == 2 {
		if t.Round2Brief == "" {
			return Task{}, fmt.Errorf("template %s has no round 2 configuration", t.ID)
		}
		brief = t.Round2Brief
		checks = t.Round2Checks
	} else if round != 1 {
		return Task{}, fmt.Errorf("invalid round number: %d", round)
	}

	rng := rand.New(rand.NewSource(int64(seedValue(seed))))
	result := 1000 + rng.Intn(9000)

	idSum := sha256.Sum256([]byte(t.ID + ":" + seed))
	taskID := fmt.Sprintf("%s-%s", t.ID, hex.EncodeToString(idSum[:])[:5])

	nonce, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	substituted := make([]string, len(checks))
	for i, c := range checks {
		substituted[i] = substitute(c, seed, result)
	}

	return Task{
		ID:        taskID,
		StudentID: studentID,
		Round:     round,
		Nonce:     nonce.String(),
		Brief:     substitute(brief, seed, result),
		Checks:    substituted,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func substitute(tmpl string, seed string, result int) string {
	s := strings.ReplaceAll(tmpl, "{seed}", seed[:8])
	return strings.ReplaceAll(s, "{result}", fmt.Sprintf("%d", result))
}

func seedValue(seed string) uint64 {
	var v uint64
	for _, b := range []byte(seed) {
		v = v*31 + uint64(b)
	}
	return v
}

// DefaultTemplates are the built-in task families. Kept small; real
// deployments load additional templates from configuration.
var DefaultTemplates = []Template{
	{
		ID:    "sum-of-sales",
		Name:  "Sales Summary Application",
		Brief: `Publish a single-page site that fetches data.csv, sums its sales column, sets the title to "Sales Summary {seed}" and displays the total inside #total-sales.`,
		Checks: []string{
			"Repo has MIT license",
			"README.md is professional",
			"js: document.title === `Sales Summary {seed}`",
			`js: Math.abs(parseFloat(document.querySelector("#total-sales").textContent) - {result}) < 0.01`,
		},
		Round2Brief: `Extend your sales site: add a per-region breakdown table with id #region-table and keep the total at #total-sales.`,
		Round2Checks: []string{
			"Repo has MIT license",
			`js: !!document.querySelector("#region-table")`,
			`js: Math.abs(parseFloat(document.querySelector("#total-sales").textContent) - {result}) < 0.01`,
		},
	},
	{
		ID:    "markdown-renderer",
		Name:  "Markdown Preview Page",
		Brief: `Publish a page that renders the attached markdown document into HTML, with the document title "Preview {seed}" and the rendered output inside #preview.`,
		Checks: []string{
			"Repo has MIT license",
			"README.md is professional",
			"js: document.title === `Preview {seed}`",
			`js: document.querySelector("#preview").children.length > 0`,
		},
	},
}
