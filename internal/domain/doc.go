// Package domain holds the task broker's core domain types: Task, State,
// and the ErrorClass failure classification.
//
// There is no storage or dispatch logic here — only data structures and
// their invariants (state transitions, history, retry eligibility).
package domain
