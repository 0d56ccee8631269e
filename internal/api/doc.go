// Package api implements the HTTP REST API and WebSocket server for poucon.
//
// This package provides:
//   - REST endpoints for alarm and interlock rule CRUD, equipment CRUD,
//     and the operator actions (acknowledge, mute, unmute, reload)
//   - Start-permission queries backed by the interlock engine's cache
//   - Audit event log queries
//   - WebSocket hub broadcasting live alarm and interlock transitions
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API server sits between the (external) operator UI and the safety
// core. Rule edits persist through the same registries the engines
// subscribe to, so a change made here reaches the engines without a
// restart. Commands flow to the field-bus adapter via MQTT through the
// equipment gateway; the server itself never talks to the bus directly.
//
// # Graceful Degradation
//
// The server operates without MQTT — reads and WebSocket connections
// work, only equipment commands fail. Authentication is out of scope:
// poucon is expected to sit behind the farm LAN or a reverse proxy.
package api
