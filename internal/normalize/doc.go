// Package normalize turns free-text agent output into a structured record.
//
// Agents answer with markdown fences, leading prose, status wrapper tags or
// Python-literal quoting. Normalize never fails: text that cannot be parsed
// comes back as a Result carrying a ParseFailure instead of an error.
package normalize
