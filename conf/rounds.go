package conf

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Round selects which check kinds run for a task and how their scores
// are combined. Weights do not have to sum to one; the aggregate is
// normalized over the weights of the enabled kinds.
type Round struct {
	Number      int                `toml:"number"`
	Checks      []string           `toml:"checks"`
	Weights     map[string]float64 `toml:"weights"`
	TimeoutMs   map[string]int     `toml:"timeout_ms"`
	Concurrency int                `toml:"concurrency"`

	// RunCmd, when set, is executed in the sandbox by the dynamic check.
	RunCmd []string `toml:"run_cmd"`
}

type RoundsFile struct {
	Rounds []Round `toml:"round"`
}

// Rounds is the parsed, validated round configuration, looked up by
// round number.
type Rounds struct {
	byNumber map[int]Round
}

func LoadRounds(path string) (*Rounds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rounds config: %w", err)
	}
	return ParseRounds(data)
}

func ParseRounds(data []byte) (*Rounds, error) {
	var file RoundsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rounds config: %w", err)
	}
	if len(file.Rounds) == 0 {
		return nil, fmt.Errorf("rounds config defines no rounds")
	}

	byNumber := make(map[int]Round, len(file.Rounds))
	for _, r := range file.Rounds {
		if r.Number <= 0 {
			return nil, fmt.Errorf("round number must be positive, got %d", r.Number)
		}
		if _, ok := byNumber[r.Number]; ok {
			return nil, fmt.Errorf("duplicate round number %d", r.Number)
		}
		if len(r.Checks) == 0 {
			return nil, fmt.Errorf("round %d enables no checks", r.Number)
		}
		seen := map[string]bool{}
		for _, kind := range r.Checks {
			if seen[kind] {
				return nil, fmt.Errorf("round %d enables check %q twice", r.Number, kind)
			}
			seen[kind] = true
		}
		for kind, w := range r.Weights {
			if !seen[kind] {
				return nil, fmt.Errorf("round %d has weight for disabled check %q", r.Number, kind)
			}
			if w < 0 {
				return nil, fmt.Errorf("round %d has negative weight for check %q", r.Number, kind)
			}
		}
		if r.Concurrency <= 0 {
			r.Concurrency = 2
		}
		byNumber[r.Number] = r
	}

	return &Rounds{byNumber: byNumber}, nil
}

// Get returns the configuration for a round number.
func (r *Rounds) Get(number int) (Round, bool) {
	round, ok := r.byNumber[number]
	return round, ok
}

// Weight returns the configured weight of a check kind within the
// round, defaulting to 1 when the round does not set weights.
func (r Round) Weight(kind string) float64 {
	if len(r.Weights) == 0 {
		return 1
	}
	if w, ok := r.Weights[kind]; ok {
		return w
	}
	return 1
}

// Timeout returns the per-check timeout in milliseconds, 0 meaning no
// round-level override.
func (r Round) Timeout(kind string) int {
	return r.TimeoutMs[kind]
}
