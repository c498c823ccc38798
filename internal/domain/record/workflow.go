package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TaskRef pins an exact task version. Workflows never reference "latest".
type TaskRef struct {
	TaskID      string `json:"task_id"`
	TaskVersion int    `json:"task_version"`
}

// String renders the ref in the canonical id@version form
func (r TaskRef) String() string {
	return fmt.Sprintf("%s@%d", r.TaskID, r.TaskVersion)
}

// ParseTaskRef parses the canonical id@version form
func ParseTaskRef(s string) (TaskRef, error) {
	s = strings.TrimSpace(s)
	id, ver, ok := strings.Cut(s, "@")
	if !ok {
		return TaskRef{}, fmt.Errorf("invalid task reference %q: use record_id@version", s)
	}
	v, err := strconv.Atoi(strings.TrimSpace(ver))
	if err != nil {
		return TaskRef{}, fmt.Errorf("invalid task version in %q: use record_id@version", s)
	}
	return TaskRef{TaskID: strings.TrimSpace(id), TaskVersion: v}, nil
}

// Workflow is an ordered composition of pinned Task versions producing one
// organization-defined objective. Workflows own no steps and no nested
// workflows; they only hold references.
type Workflow struct {
	Meta

	Title     string    `json:"title"`
	Objective string    `json:"objective"`
	TaskRefs  []TaskRef `json:"task_refs"`
}

// DerivedDomains computes the workflow's domains as the sorted union of the
// referenced tasks' domains. Domains are never stored or authored on the
// workflow itself.
func DerivedDomains(tasks []*Task) []string {
	seen := make(map[string]bool)
	for _, t := range tasks {
		if t == nil || t.Domain == "" {
			continue
		}
		seen[t.Domain] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
