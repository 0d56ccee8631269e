// Package events provides the audit trail for the poucon core.
//
// Every equipment transition the safety engines perform is recorded as
// an Event: sirens switched on or off by the alarm engine, dependents
// stopped by an interlock trip, and operator actions taken through the
// API. The log answers "why did this fan stop at 03:12" months later,
// so writes never block an engine tick and failures to write are logged
// and swallowed by the callers.
//
// The Logger interface is the write side the engines depend on; the
// Repository adds filtered queries for the API and retention pruning.
package events
