package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTaskRef(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected TaskRef
		wantErr  bool
	}{
		{
			name:     "well-formed ref",
			input:    "task-abc@3",
			expected: TaskRef{TaskID: "task-abc", TaskVersion: 3},
		},
		{
			name:     "whitespace trimmed",
			input:    "  task-abc @ 2 ",
			expected: TaskRef{TaskID: "task-abc", TaskVersion: 2},
		},
		{
			name:    "missing version separator",
			input:   "task-abc",
			wantErr: true,
		},
		{
			name:    "non-numeric version",
			input:   "task-abc@latest",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseTaskRef(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, ref)
		})
	}
}

func TestTaskRef_String(t *testing.T) {
	ref := TaskRef{TaskID: "task-abc", TaskVersion: 4}
	assert.Equal(t, "task-abc@4", ref.String())
}

func TestDerivedDomains(t *testing.T) {
	tasks := []*Task{
		{Domain: "finance"},
		{Domain: "ops"},
		{Domain: "finance"},
		{Domain: ""},
		nil,
	}

	assert.Equal(t, []string{"finance", "ops"}, DerivedDomains(tasks))
	assert.Empty(t, DerivedDomains(nil))
}

func TestNormalizeSteps(t *testing.T) {
	steps := []Step{
		{Text: "  open the register ", Completion: " register shows zero balance "},
		{Text: "", Completion: ""},
		{Text: "   ", Completion: "  "},
		{Text: "count cash", Completion: ""},
	}

	got := NormalizeSteps(steps)

	assert.Len(t, got, 2)
	assert.Equal(t, Step{Text: "open the register", Completion: "register shows zero balance"}, got[0])
	assert.Equal(t, Step{Text: "count cash", Completion: ""}, got[1])
}
