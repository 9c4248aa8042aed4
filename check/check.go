package check

import (
	"context"
	"fmt"
	"time"

	"github.com/repograde/backend/repofetch"
)

// Kind is a category of automated repository evaluation.
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindLLM     Kind = "llm"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStatic, KindDynamic, KindLLM:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown check kind: %q", s)
}

// Failure classifies why a check failed without producing a verdict of
// its own. Empty on checks that ran to completion.
type Failure string

const (
	FailureNone         Failure = ""
	FailureUnreachable  Failure = "unreachable_repository"
	FailureTimeout      Failure = "check_timeout"
	FailureExecutionErr Failure = "check_execution_error"
)

// Result is the immutable outcome of one check invocation. A runner
// always returns a fully populated Result; failures are encoded in
// Passed/Failure/Detail rather than as errors.
type Result struct {
	Kind     Kind
	Passed   bool
	Score    float64 // 0..100
	Failure  Failure
	Detail   string // free-form, for the student to debug failed checks
	Duration time.Duration
}

// Config carries check-specific options resolved from the round
// configuration and the task.
type Config struct {
	Timeout time.Duration

	// Dynamic check options
	RunCommand []string // command executed inside the sandbox, optional

	// LLM check options
	Rubric []string // the task's human-readable check descriptions
}

// Runner executes one evaluation check against a repository snapshot
// reference. Implementations may return errors; Guarded converts them
// into failed Results so the orchestrator never sees a bare fault.
type Runner interface {
	Kind() Kind
	Run(ctx context.Context, ref repofetch.Ref, cfg Config) (Result, error)
}

// Registry maps check kinds to their concrete runners. Built once at
// configuration time.
type Registry struct {
	runners map[Kind]Runner
}

func NewRegistry(runners ...Runner) *Registry {
	m := make(map[Kind]Runner, len(runners))
	for _, r := range runners {
		m[r.Kind()] = r
	}
	return &Registry{runners: m}
}

// Get returns the runner for a kind, nil if none is registered.
func (reg *Registry) Get(kind Kind) Runner {
	return reg.runners[kind]
}

// Kinds lists the registered kinds.
func (reg *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(reg.runners))
	for k := range reg.runners {
		kinds = append(kinds, k)
	}
	return kinds
}
