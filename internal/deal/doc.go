// Package deal compares per-platform quotes and multi-item vendor baskets.
// Selection is pure and deterministic: the same quotes and priority order
// always produce the same winner.
package deal
