package record

// Status represents a record version's position in the governance lifecycle
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusConfirmed  Status = "confirmed"
	StatusDeprecated Status = "deprecated"
)

var validStatuses = map[Status]bool{
	StatusDraft:      true,
	StatusSubmitted:  true,
	StatusConfirmed:  true,
	StatusDeprecated: true,
}

// IsValid returns true if the status is a known lifecycle status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed for this version.
// Deprecated is the only terminal status; a confirmed version can still be
// deprecated when it is superseded.
func (s Status) IsTerminal() bool {
	return s == StatusDeprecated
}

// IsImmutable returns true if the version's content may no longer change
func (s Status) IsImmutable() bool {
	return s == StatusConfirmed || s == StatusDeprecated
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
