// Package control implements the command surface used by the HTTP API:
// start and stop polling, change the target, and manage the bot session.
//
// Input is validated before any state changes. Validation failures wrap
// [ErrValidation].
package control
