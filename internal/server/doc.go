// Package server provides the HTTP transport for recwatch.
//
// Routes:
//
//   - GET /: embedded dashboard page
//   - GET /health: liveness probe
//   - GET /api/status: polling status with bot summary
//   - POST /api/start, /api/stop, /api/config: polling control
//   - POST /api/bot/start, /api/bot/stop, GET /api/bot/status: bot control
//   - GET /ws: WebSocket live channel
//   - GET /api/sse: Server-Sent Events mirror of the live channel
//
// Every live listener first receives a full status snapshot, then every
// broadcast message. The server shuts down gracefully when the context
// passed to [Server.Start] is cancelled.
package server
