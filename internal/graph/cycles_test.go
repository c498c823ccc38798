package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapCorpus is a Corpus backed by a plain adjacency map
type mapCorpus map[string][]string

func (c mapCorpus) TaskDependencies(taskID string) []string { return c[taskID] }

func (c mapCorpus) TaskExists(taskID string) bool {
	_, ok := c[taskID]
	return ok
}

func TestCheckTask_NoDependencies(t *testing.T) {
	corpus := mapCorpus{"t-a": nil}
	assert.NoError(t, CheckTask("t-new", nil, corpus))
}

func TestCheckTask_SelfReference(t *testing.T) {
	corpus := mapCorpus{}

	err := CheckTask("t-a", []string{"t-a"}, corpus)

	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"t-a", "t-a"}, cycleErr.Path)
}

func TestCheckTask_TwoTaskCycle(t *testing.T) {
	// t-b already depends on t-a; adding t-a -> t-b closes the loop
	corpus := mapCorpus{
		"t-b": {"t-a"},
	}

	err := CheckTask("t-a", []string{"t-b"}, corpus)

	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"t-a", "t-b", "t-a"}, cycleErr.Path)
}

func TestCheckTask_LongerCycle(t *testing.T) {
	corpus := mapCorpus{
		"t-b": {"t-c"},
		"t-c": {"t-a"},
	}

	err := CheckTask("t-a", []string{"t-b"}, corpus)

	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"t-a", "t-b", "t-c", "t-a"}, cycleErr.Path)
}

func TestCheckTask_DiamondIsNotACycle(t *testing.T) {
	// Two paths reaching the same node is fine; only back edges are cycles
	corpus := mapCorpus{
		"t-b": {"t-d"},
		"t-c": {"t-d"},
		"t-d": nil,
	}

	assert.NoError(t, CheckTask("t-a", []string{"t-b", "t-c"}, corpus))
}

func TestCheckTask_CycleElsewhereInCorpusIgnored(t *testing.T) {
	// A pre-existing cycle unreachable from the candidate does not block it
	corpus := mapCorpus{
		"t-x": {"t-y"},
		"t-y": {"t-x"},
		"t-b": nil,
	}

	assert.NoError(t, CheckTask("t-a", []string{"t-b"}, corpus))
}

func TestCheckTask_ProseDependenciesSkipped(t *testing.T) {
	// Free-text preconditions do not resolve to task IDs, so they are not edges
	corpus := mapCorpus{
		"t-b": nil,
	}

	err := CheckTask("t-a", []string{"t-b", "network access to the registry"}, corpus)
	assert.NoError(t, err)
}
