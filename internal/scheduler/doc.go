// Package scheduler keeps one in-memory fire timer per pending reminder
// and hands due payloads to a delivery worker pool.
//
// Timers are ephemeral: they do not survive a restart. The task coordinator
// re-arms them from storage on startup. Firing and removing a timer is a
// single transition under the timer-set lock, so an observer never sees a
// fired reminder still listed as armed.
package scheduler
