package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a self-description version.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDeprecated Status = "DEPRECATED"
	StatusRevoked    Status = "REVOKED"
	StatusEOL        Status = "EOL"
)

// AllStatuses lists every valid status.
var AllStatuses = []Status{StatusActive, StatusDeprecated, StatusRevoked, StatusEOL}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDeprecated, StatusRevoked, StatusEOL:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.IsValid() && s != StatusActive
}

// CanTransitionTo is the single transition rule: only ACTIVE may leave, and
// only to one of the terminal states.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusActive && target.IsTerminal()
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the status name in any case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}
