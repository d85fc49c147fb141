// Package platform executes search and order goals on commerce, food,
// pharmacy, ride and travel apps through one adapter parameterised by a
// Variant, and turns the replies into deal.Quote values.
package platform
