// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Participant is a joined chat session. The name is its identity and never
// changes; presence is inferred from registry membership and LastSeen age.
type Participant struct {
	Name     string
	LastSeen time.Time
}

// IdleSince reports whether the participant has been silent for at least timeout.
func (p Participant) IdleSince(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastSeen) >= timeout
}
