// Package utils provides small, generic helpers shared across layers. Nothing
// here knows about merchants, intents, or the ledger.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or malformed.
// List endpoints use it for the page and page_size query params, where a
// garbage value should mean "use the default" rather than a 400.
//
//	page := utils.AtoiDefault(c.Query("page"), 1)
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
