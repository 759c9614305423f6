// Package checker runs a single availability check: fetch the activity page,
// decide whether enrollment is open, and fire alerts when it is.
//
// The main components are:
//
//   - [Checker]: one fetch-and-evaluate cycle per call to [Checker.Check]
//   - [Result]: the immutable outcome of a cycle
//   - [PageFetcher], [Notifier], [BotNotifier]: the collaborators a check uses
//
// A check never returns an error. Fetch failures are reported on
// [Result.Error] so the polling loop can carry on with its next tick.
package checker
