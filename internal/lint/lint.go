package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lcsys/governance/internal/domain/record"
)

// Bundling verbs that usually hide several actions behind one step
var abstractVerbs = []string{
	"edit",
	"configure",
	"set up",
	"setup",
	"manage",
	"ensure",
	"handle",
	"prepare",
	"troubleshoot",
}

// Verbs that assert a state change and therefore want a named check
var stateChangeVerbs = []string{
	"install",
	"mount",
	"enable",
	"add",
	"update",
	"remove",
	"create",
	"delete",
}

var (
	methodTokenRe = regexp.MustCompile("`.+?`")
	checkTokenRe  = regexp.MustCompile(`\b(confirm|verify|check)\b`)
	conjunctionRe = regexp.MustCompile(`\b(and|then|also|as well as)\b`)
)

// LintSteps runs the heuristic step-quality checks and returns warnings.
// Warnings never block anything; they ride alongside a successful validation.
func LintSteps(steps []record.Step) []string {
	var warnings []string

	for i, step := range steps {
		n := i + 1
		text := step.Text
		low := strings.ToLower(strings.TrimSpace(text))

		if v, ok := startsWithVerb(low, abstractVerbs); ok {
			if !methodTokenRe.MatchString(text) && !checkTokenRe.MatchString(low) {
				warnings = append(warnings, fmt.Sprintf(
					"Step %d: starts with abstract verb %q. Prefer decomposed steps with explicit method + completion check.", n, v))
			}
		}

		if conjunctionRe.MatchString(low) {
			warnings = append(warnings, fmt.Sprintf(
				"Step %d: may include multiple actions (contains conjunction like 'and/then/also'). Consider splitting.", n))
		}

		if _, ok := startsWithVerb(low, stateChangeVerbs); ok {
			if !hasVerification(steps, i) {
				warnings = append(warnings, fmt.Sprintf(
					"Step %d: appears to change state; include an explicit completion check (command/observable output) or follow with a check step.", n))
			}
		}
	}

	return warnings
}

func startsWithVerb(low string, verbs []string) (string, bool) {
	for _, v := range verbs {
		if low == v || strings.HasPrefix(low, v+" ") {
			return v, true
		}
	}
	return "", false
}

// hasVerification reports whether step i carries a named completion check
// in its own text or completion field, or in the immediately following step.
func hasVerification(steps []record.Step, i int) bool {
	s := steps[i]
	low := strings.ToLower(s.Text)
	if s.Completion != "" || checkTokenRe.MatchString(low) || methodTokenRe.MatchString(s.Text) {
		return true
	}
	if i+1 < len(steps) {
		next := strings.ToLower(steps[i+1].Text)
		if checkTokenRe.MatchString(next) {
			return true
		}
	}
	return false
}
