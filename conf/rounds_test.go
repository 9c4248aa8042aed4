package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRounds = `
[[round]]
number = 1
checks = ["static", "llm"]
concurrency = 3

[round.weights]
static = 0.5
llm = 0.5

[round.timeout_ms]
llm = 30000

[[round]]
number = 2
checks = ["static", "dynamic", "llm"]
run_cmd = ["node", "index.js"]
`

func TestParseRounds(t *testing.T) {
	rounds, err := ParseRounds([]byte(sampleRounds))
	require.NoError(t, err)

	r1, ok := rounds.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"static", "llm"}, r1.Checks)
	assert.Equal(t, 3, r1.Concurrency)
	assert.Equal(t, 0.5, r1.Weight("static"))
	assert.Equal(t, 30000, r1.Timeout("llm"))
	assert.Equal(t, 0, r1.Timeout("static"))

	r2, ok := rounds.Get(2)
	require.True(t, ok)
	assert.Equal(t, []string{"node", "index.js"}, r2.RunCmd)
	// concurrency defaults when omitted
	assert.Equal(t, 2, r2.Concurrency)

	_, ok = rounds.Get(3)
	assert.False(t, ok)
}

func TestParseRoundsWeightDefaults(t *testing.T) {
	rounds, err := ParseRounds([]byte(`
[[round]]
number = 1
checks = ["static", "llm"]
`))
	require.NoError(t, err)

	r, ok := rounds.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Weight("static"))
	assert.Equal(t, 1.0, r.Weight("llm"))
}

func TestParseRoundsRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"empty", ``},
		{"no checks", `
[[round]]
number = 1
checks = []
`},
		{"duplicate round", `
[[round]]
number = 1
checks = ["static"]

[[round]]
number = 1
checks = ["llm"]
`},
		{"duplicate check", `
[[round]]
number = 1
checks = ["static", "static"]
`},
		{"weight for disabled check", `
[[round]]
number = 1
checks = ["static"]

[round.weights]
llm = 0.5
`},
		{"negative weight", `
[[round]]
number = 1
checks = ["static"]

[round.weights]
static = -1.0
`},
		{"non-positive number", `
[[round]]
number = 0
checks = ["static"]
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRounds([]byte(tc.toml))
			require.Error(t, err)
		})
	}
}
