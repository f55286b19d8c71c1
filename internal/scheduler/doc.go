// Package scheduler drives the reminder lifecycle end to end: it bridges
// the pure recurrence core to the timer service, the task store and the
// notification dispatcher.
//
// The scheduler holds no durable state. Everything it knows about "what's
// scheduled" is reconstructible from task records plus boot recovery, which
// is how timers survive a process or device restart.
//
// Concurrency model: calls for different tasks run in parallel; calls for
// the same task are serialized through a keyed mutex so cancel-then-
// reinstall never interleaves with itself. Every installed timer carries
// the task's scheduling generation; a fire event with a stale generation is
// dropped instead of producing a duplicate reminder.
package scheduler
