// Package redis holds Redis-backed helpers shared by the DealPilot runtime,
// currently the cross-process quote cache.
package redis
