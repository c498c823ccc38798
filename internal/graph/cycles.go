// Package graph detects cycles among Task dependency declarations.
// Workflows are structurally outside the graph: they cannot nest and their
// references are checked for resolution, not traversed.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle with the full path for diagnostics
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Corpus supplies the declared task-to-task dependency edges of the
// existing record set. Only dependencies that name known task record IDs
// appear as edges.
type Corpus interface {
	// TaskDependencies returns the task record IDs that taskID depends on
	TaskDependencies(taskID string) []string
	// TaskExists reports whether a task record with this ID exists
	TaskExists(taskID string) bool
}

// CheckTask verifies that adding candidateID with the given dependency list
// introduces no cycle. Self-reference is an immediate error. Dependencies
// that do not resolve to known task IDs are preconditions in prose and are
// skipped.
func CheckTask(candidateID string, deps []string, corpus Corpus) error {
	edges := make([]string, 0, len(deps))
	for _, d := range deps {
		d = strings.TrimSpace(d)
		if d == candidateID {
			return &CycleError{Path: []string{candidateID, candidateID}}
		}
		if corpus.TaskExists(d) {
			edges = append(edges, d)
		}
	}
	sort.Strings(edges)

	// Depth-first walk from the candidate through the declared corpus edges.
	// onStack holds the recursion set; stack the path for cycle reporting.
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var walk func(id string, next []string) *CycleError
	walk = func(id string, next []string) *CycleError {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range next {
			if onStack[dep] {
				return cycleFrom(stack, dep)
			}
			if visited[dep] {
				continue
			}
			if err := walk(dep, corpus.TaskDependencies(dep)); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
		return nil
	}

	if err := walk(candidateID, edges); err != nil {
		return err
	}
	return nil
}

// cycleFrom slices the current DFS stack at the first occurrence of start
// and closes the loop.
func cycleFrom(stack []string, start string) *CycleError {
	for i, id := range stack {
		if id == start {
			path := append(append([]string{}, stack[i:]...), start)
			return &CycleError{Path: path}
		}
	}
	// start must be on the stack when this is called
	return &CycleError{Path: []string{start, start}}
}
