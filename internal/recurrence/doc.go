// Package recurrence is the pure computation core of the reminder daemon.
//
// It answers two questions without performing any I/O:
//   - given a task's recurrence rule and completion facts, when is the next
//     occurrence and is the task currently due (resolver.go)
//   - given a rule's daily cadence, at which wall-clock times should
//     reminders fire today (slots.go)
//
// Every time-sensitive function takes "now" as an explicit parameter so the
// package stays deterministic and testable.
package recurrence
