// Package storage persists schedules and the transition audit log.
//
// Schedule drivers:
//   - "yaml":   a single YAML document, rewritten atomically on each change
//   - "sqlite": one row per schedule with the variant payload as JSON
//   - "memory": process-local, for tests and dry runs
//
// Audit drivers add "redis" (a capped list) to the above.
package storage
