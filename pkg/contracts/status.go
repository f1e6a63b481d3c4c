package contracts

import "fmt"

var transitions = map[Status][]Status{
	StatusDraft: {StatusSent, StatusVoided},
	StatusSent:  {StatusSigned, StatusDeclined, StatusVoided},
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusSigned, StatusDeclined, StatusVoided:
		return true
	}
	return false
}

// Final reports whether no further transition is possible
func (s Status) Final() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether a contract may move from one status to another
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition wrapped with both statuses
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// eventFor names the outbound event for a status change
func eventFor(s Status) string {
	return "contract." + string(s)
}
