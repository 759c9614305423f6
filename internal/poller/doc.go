// Package poller drives the repeating availability check.
//
// The main components are:
//
//   - [Controller]: start/stop state machine owning the polling loop
//   - [Config]: target URL and interval, readable on every tick
//   - [Status]: point-in-time view of polling state for snapshots
//   - [StatusMessage], [ResultMessage]: the events pushed to listeners
//
// A started controller checks immediately, then reschedules itself after each
// check completes. Checks of one loop never overlap: a check that overruns
// the interval delays the next one. Interval changes take effect when the
// next check is scheduled.
package poller
