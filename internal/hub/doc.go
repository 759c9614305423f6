// Package hub fans live-update messages out to connected listeners.
//
// This package is internal to recwatch. It implements a publish-subscribe
// pattern: every WebSocket or SSE connection holds a [Subscription], and
// [Hub.Broadcast] serializes a message once and offers it to every open
// subscription.
//
// The main components are:
//
//   - [Hub]: Subscription registry and fan-out
//   - [Subscription]: A single listener's buffered message channel
//   - [Broadcaster]: The narrow interface producers depend on
//
// Sends are non-blocking. A listener that is closed or whose buffer is full
// is skipped for that message; nothing is retried or buffered on its behalf.
package hub
