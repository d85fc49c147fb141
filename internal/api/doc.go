// Package api exposes the job REST endpoints, a WebSocket stream of task
// events, health checks and the Prometheus scrape endpoint. Job and event
// routes can be guarded by static API tokens (see internal/auth).
package api
