// Package research tracks the iteration budget of a long-running autonomous
// session and the sentinel the assistant uses to end one.
package research

import "sync"

// ShutdownSentinel ends an autonomous research session when it appears
// anywhere in the assistant's reply. The exact token matters; it is written
// into the research prompt verbatim.
const ShutdownSentinel = "SHUT_DOWN_DEEP_RESEARCHER"

// Tracker counts down the remaining autonomous iterations. A zero budget
// means unlimited.
type Tracker struct {
	mu     sync.Mutex
	budget int
	used   int
}

// NewTracker creates a tracker with the given budget.
func NewTracker(budget int) *Tracker {
	return &Tracker{budget: budget}
}

// SetBudget replaces the budget and resets the used count.
func (t *Tracker) SetBudget(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budget = n
	t.used = 0
}

// Budget returns the configured budget.
func (t *Tracker) Budget() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget
}

// Consume records one iteration and reports whether the budget still allows
// it. An unlimited tracker always permits.
func (t *Tracker) Consume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget <= 0 {
		return true
	}
	if t.used >= t.budget {
		return false
	}
	t.used++
	return true
}

// Remaining returns the iterations left, or -1 when unlimited.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget <= 0 {
		return -1
	}
	return t.budget - t.used
}
