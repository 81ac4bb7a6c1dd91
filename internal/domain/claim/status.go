package claim

import "strings"

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusDeclined Status = "Declined"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// ParseStatus accepts the canonical spelling in any letter case.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "declined":
		return StatusDeclined, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Policy names a transition table.
type Policy string

const (
	// PolicyOpen lets any status overwrite any other, terminal ones included.
	PolicyOpen Policy = "open"
	// PolicyStrict only allows a pending claim to be decided once.
	PolicyStrict Policy = "strict"
)

// Transitions is an explicit from -> to table.
type Transitions map[Status]map[Status]bool

func NewTransitions(p Policy) Transitions {
	all := []Status{StatusPending, StatusApproved, StatusDeclined}
	t := make(Transitions, len(all))

	for _, from := range all {
		t[from] = make(map[Status]bool, len(all))
	}

	if p == PolicyStrict {
		for _, from := range all {
			for _, to := range all {
				t[from][to] = !from.IsTerminal() && to.IsTerminal()
			}
		}
		return t
	}

	for _, from := range all {
		for _, to := range all {
			t[from][to] = true
		}
	}

	return t
}

func (t Transitions) Allowed(from, to Status) bool {
	return t[from][to]
}
