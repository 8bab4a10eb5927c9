// Package common holds the few helpers shared across FanRide's storage and
// HTTP layers that don't belong to either one specifically.
package common

import "regexp"

var streamIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,64}$`)

// ValidStreamID reports whether id is an acceptable stream identifier: 1-64
// characters of letters, digits, underscore, dash, or dot. Every stream ID
// becomes a partition key and a document ID prefix, so the same constraint
// the store backend expects of a document ID applies here.
func ValidStreamID(id string) bool {
	return streamIDRegex.MatchString(id)
}
