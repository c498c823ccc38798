package record

import "strings"

// Step is one atomic action within a Task procedure. Completion names the
// observable check that proves the step happened.
type Step struct {
	Text       string `json:"text"`
	Completion string `json:"completion"`
}

// Task is an atomic, reusable unit producing one outcome. Each Task version
// exclusively owns its facts, concepts and steps; there is no sharing
// registry, duplication across tasks is accepted over drift.
type Task struct {
	Meta

	Title         string   `json:"title"`
	Outcome       string   `json:"outcome"`
	Domain        string   `json:"domain"`
	Facts         []string `json:"facts"`
	Concepts      []string `json:"concepts"`
	ProcedureName string   `json:"procedure_name"`
	Steps         []Step   `json:"steps"`
	// Dependencies are preconditions. Entries that name another Task's
	// record ID participate in the dependency cycle graph; free text does not.
	Dependencies []string `json:"dependencies"`
	Irreversible bool     `json:"irreversible"`
}

// NormalizeSteps trims step fields and drops rows that are entirely empty
func NormalizeSteps(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		s.Text = strings.TrimSpace(s.Text)
		s.Completion = strings.TrimSpace(s.Completion)
		if s.Text == "" && s.Completion == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
