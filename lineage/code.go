// Package lineage holds the identity rules shared by every versioned object:
// the canonical Code, canonical relation pair ordering and the per lineage
// modification clock.
package lineage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision of timestamps as persisted by the relational store.
const Precision = time.Microsecond

// FormatCode builds the canonical "{Object_Type}-{Object_ID}" code.
func FormatCode(objectType string, objectID int64) string {
	return fmt.Sprintf("%s-%d", objectType, objectID)
}

// ParseCode splits a code into its object type and object id.
func ParseCode(code string) (string, int64, error) {
	objectType, rawID, ok := strings.Cut(code, "-")
	if !ok || objectType == "" || rawID == "" {
		return "", 0, fmt.Errorf("invalid code %q: expected {type}-{id}", code)
	}
	objectID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid code %q: %w", code, err)
	}
	if objectID < 1 {
		return "", 0, fmt.Errorf("invalid code %q: object id must be positive", code)
	}
	return objectType, objectID, nil
}

// OrderedPair returns the two codes in canonical (from, to) order.
func OrderedPair(a, b string) (string, string, error) {
	if a == b {
		return "", "", fmt.Errorf("a relation needs two distinct codes, got %q twice", a)
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

// NextModified returns the modification timestamp for a new version of a
// lineage whose newest version was modified at previous. The result is
// truncated to the store precision and always strictly after previous.
func NextModified(now, previous time.Time) time.Time {
	next := now.Truncate(Precision)
	if previous.IsZero() {
		return next
	}
	if !next.After(previous) {
		next = previous.Truncate(Precision).Add(Precision)
	}
	return next
}
