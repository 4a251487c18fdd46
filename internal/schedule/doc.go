// Package schedule holds the timer model: value types and predicates that
// answer "is this schedule on at time T" and "when does it next turn on/off".
//
// Three variants share one Schedule type, selected by the Kind discriminator:
//   - Duration:  a start time-of-day plus a length in minutes
//   - TimeRange: an on time-of-day and an off time-of-day
//   - Recurring: a dated occurrence that repeats by a calendar period
//
// Everything here is side-effect free. Callers pass the instant to evaluate;
// the package never reads the wall clock.
package schedule
